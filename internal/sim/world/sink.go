package world

import (
	"time"

	"github.com/google/uuid"

	"gardenperf.ai/internal/sim/conceal"
	"gardenperf.ai/internal/sim/sector"
)

// TransitionSink receives every processed conceal or reveal. Implementations
// must not block the world loop.
type TransitionSink interface {
	WriteTransition(rec TransitionRecord) error
}

// EventSink receives the sector's debug events once per tick.
type EventSink interface {
	WriteEvents(tick uint64, events []SectorEventRecord) error
}

// SessionSink receives player and host connect/disconnect records.
type SessionSink interface {
	WriteSession(rec SessionRecord) error
}

type TransitionRecord struct {
	EventID     string    `json:"event_id"`
	WorldID     string    `json:"world_id"`
	Tick        uint64    `json:"tick"`
	Kind        string    `json:"kind"`
	EntityID    int64     `json:"entity_id"`
	DisplayName string    `json:"display_name,omitempty"`
	OwnerID     int64     `json:"owner_id,omitempty"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

type SectorEventRecord struct {
	Tick     uint64 `json:"tick"`
	Kind     string `json:"kind"`
	EntityID int64  `json:"entity_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Count    int    `json:"count,omitempty"`
}

const (
	RolePlayer = "PLAYER"
	RoleHost   = "HOST"

	SessionConnect    = "CONNECT"
	SessionDisconnect = "DISCONNECT"
)

type SessionRecord struct {
	WorldID   string    `json:"world_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Event     string    `json:"event"`
	PlayerID  int64     `json:"player_id,omitempty"`
	HostName  string    `json:"host_name,omitempty"`
	Tick      uint64    `json:"tick"`
	At        time.Time `json:"at"`
}

type TransitionTotals struct {
	Concealed uint64 `json:"concealed"`
	Revealed  uint64 `json:"revealed"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
}

func (w *World) recordSectorEvent(ev sector.Event) {
	w.pendingEvents = append(w.pendingEvents, SectorEventRecord{
		Tick:     w.tick.Load(),
		Kind:     ev.Kind.String(),
		EntityID: int64(ev.EntityID),
		Name:     ev.Name,
		Count:    ev.Count,
	})
}

func (w *World) emit(tick uint64, trs []conceal.Transition) {
	for _, tr := range trs {
		switch {
		case tr.Outcome == conceal.OutcomeDone && tr.Kind == conceal.KindConceal:
			w.totals.Concealed++
		case tr.Outcome == conceal.OutcomeDone && tr.Kind == conceal.KindReveal:
			w.totals.Revealed++
		case tr.Outcome == conceal.OutcomeSkipped:
			w.totals.Skipped++
		default:
			w.totals.Failed++
		}
		rec := TransitionRecord{
			EventID:     uuid.NewString(),
			WorldID:     w.cfg.ID,
			Tick:        tick,
			Kind:        tr.Kind.String(),
			EntityID:    int64(tr.EntityID),
			DisplayName: tr.DisplayName,
			OwnerID:     int64(tr.OwnerID),
			Outcome:     tr.Outcome.String(),
			Reason:      tr.Reason,
			At:          tr.At.UTC(),
		}
		w.log.Printf("tick %d: %s %d (%s) %s %s", tick, rec.Kind, rec.EntityID, rec.DisplayName, rec.Outcome, rec.Reason)
		for _, s := range w.transitionSinks {
			if err := s.WriteTransition(rec); err != nil {
				w.log.Printf("transition sink: %v", err)
			}
		}
	}

	if len(w.pendingEvents) == 0 {
		return
	}
	for _, s := range w.eventSinks {
		if err := s.WriteEvents(tick, w.pendingEvents); err != nil {
			w.log.Printf("event sink: %v", err)
		}
	}
	w.pendingEvents = w.pendingEvents[:0]
}

func (w *World) recordSession(rec SessionRecord) {
	if len(w.sessionSinks) == 0 {
		return
	}
	rec.WorldID = w.cfg.ID
	rec.Tick = w.tick.Load()
	rec.At = w.now().UTC()
	for _, s := range w.sessionSinks {
		if err := s.WriteSession(rec); err != nil {
			w.log.Printf("session sink: %v", err)
		}
	}
}
