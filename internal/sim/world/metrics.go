package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Entities       int `json:"entities"`
	Observers      int `json:"observers"`
	RevealedGrids  int `json:"revealed_grids"`
	ConcealedGrids int `json:"concealed_grids"`

	ActivePlayers int  `json:"active_players"`
	SpawnOwners   int  `json:"spawn_owners"`
	Clients       int  `json:"clients"`
	HostAttached  bool `json:"host_attached"`

	QueuedConceals int `json:"queued_conceals"`
	QueuedReveals  int `json:"queued_reveals"`

	QueueDepths QueueDepths      `json:"queue_depths"`
	Totals      TransitionTotals `json:"totals"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox     int `json:"inbox"`
	HostInbox int `json:"host_inbox"`
	Join      int `json:"join"`
	Leave     int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(step time.Duration) {
	entities, observers, grids := w.sector.Counts()
	conceals, reveals := w.conceal.QueueLen()
	w.metrics.Store(WorldMetrics{
		Tick:           w.tick.Load(),
		Entities:       entities,
		Observers:      observers,
		RevealedGrids:  grids,
		ConcealedGrids: w.conceal.Store().Len(),
		ActivePlayers:  len(w.sector.ActivePlayers()),
		SpawnOwners:    len(w.sector.SpawnOwners()),
		Clients:        len(w.clients),
		HostAttached:   w.host != nil,
		QueuedConceals: conceals,
		QueuedReveals:  reveals,
		QueueDepths: QueueDepths{
			Inbox:     len(w.inbox),
			HostInbox: len(w.hostInbox),
			Join:      len(w.playerJoin),
			Leave:     len(w.playerLeave),
		},
		Totals: w.totals,
		StepMS: float64(step.Microseconds()) / 1000,
	})
}
