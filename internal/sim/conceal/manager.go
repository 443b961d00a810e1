package conceal

import (
	"errors"
	"io"
	"log"
	"time"

	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/sector"
	"gardenperf.ai/internal/sim/spatial"
)

// Host performs the actual removal and re-insertion of grids in the
// simulated world. Calls must not block.
type Host interface {
	Conceal(g *entity.Entity) error
	Reveal(r Record) error
}

var ErrNoHost = errors.New("no host connected")

type Kind uint8

const (
	KindConceal Kind = iota + 1
	KindReveal
)

func (k Kind) String() string {
	switch k {
	case KindConceal:
		return "CONCEAL"
	case KindReveal:
		return "REVEAL"
	}
	return "UNKNOWN"
}

type Outcome uint8

const (
	OutcomeDone Outcome = iota + 1
	// OutcomeSkipped means the grid was no longer eligible when its turn came.
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "DONE"
	case OutcomeSkipped:
		return "SKIPPED"
	case OutcomeFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Transition is one processed queue entry.
type Transition struct {
	Kind        Kind
	EntityID    entity.ID
	DisplayName string
	OwnerID     entity.PlayerID
	Outcome     Outcome
	Reason      string
	At          time.Time
}

// Manager decides which grids may leave simulation and queues the
// transitions the host carries out.
//
// Manager is not safe for concurrent use; the world loop owns it.
type Manager struct {
	log    *log.Logger
	sector *sector.Revealed
	store  *Store
	host   Host

	concealQ []entity.ID
	revealQ  []entity.ID
	queued   map[entity.ID]Kind
}

// NewManager wires a concealed store into sec so spawn owner rebuilds reach
// the concealed side.
func NewManager(logger *log.Logger, sec *sector.Revealed, host Host) *Manager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Manager{
		log:    logger,
		sector: sec,
		host:   host,
		queued: map[entity.ID]Kind{},
	}
	m.store = NewStore(sec.SpawnOwnerNeeded)
	sec.SetConcealed(m.store)
	return m
}

func (m *Manager) Store() *Store { return m.store }

// Concealability reports why grid id is kept revealed. ok is false when the
// grid is not revealed.
func (m *Manager) Concealability(id entity.ID) (c entity.Concealability, ok bool) {
	g := m.sector.Grid(id)
	if g == nil {
		return 0, false
	}
	return g.Concealability(m.sector.SpawnOwnerNeeded(g.OwnerID)), true
}

// CanConceal reports whether grid id may be concealed now: it is revealed,
// not controlled, not reveal-blocked, not inside an asteroid, and its owner
// is not a spawn owner. Observers do not prevent a requested conceal.
func (m *Manager) CanConceal(id entity.ID) bool {
	c, ok := m.Concealability(id)
	return ok && c.Manual() == entity.Concealable
}

// CanAutoConceal additionally requires that nobody observes the grid.
func (m *Manager) CanAutoConceal(id entity.ID) bool {
	c, ok := m.Concealability(id)
	return ok && c == entity.Concealable
}

// Revealability reports why concealed grid id wants to come back, using
// visibility as the observer reach. ok is false when id is not concealed.
func (m *Manager) Revealability(id entity.ID) (r entity.Revealability, ok bool) {
	rec, ok := m.store.Get(id)
	if !ok {
		return 0, false
	}
	if rec.SpawnNeeded {
		r |= entity.RevealSpawnNeeded
	}
	reach := spatial.Sphere{Center: rec.Position, Radius: m.sector.Visibility()}
	if len(m.sector.ObservingInSphere(reach)) > 0 {
		r |= entity.RevealObserved
	}
	return r, true
}

// QueueConceal enqueues a conceal of revealed grid id. It returns false when
// the grid is unknown, already concealed or already queued.
func (m *Manager) QueueConceal(id entity.ID) bool {
	if m.sector.Grid(id) == nil {
		return false
	}
	if _, ok := m.queued[id]; ok {
		return false
	}
	m.queued[id] = KindConceal
	m.concealQ = append(m.concealQ, id)
	return true
}

// QueueReveal enqueues a reveal of concealed grid id. It returns false when
// the grid is not concealed or already queued.
func (m *Manager) QueueReveal(id entity.ID) bool {
	if !m.store.Has(id) {
		return false
	}
	if _, ok := m.queued[id]; ok {
		return false
	}
	m.queued[id] = KindReveal
	m.revealQ = append(m.revealQ, id)
	return true
}

func (m *Manager) Queued(id entity.ID) (Kind, bool) {
	k, ok := m.queued[id]
	return k, ok
}

func (m *Manager) QueueLen() (conceals, reveals int) { return len(m.concealQ), len(m.revealQ) }

// ProcessQueues carries out up to max queued transitions, reveals first,
// and returns what happened to each. max <= 0 processes everything.
func (m *Manager) ProcessQueues(now time.Time, max int) []Transition {
	var out []Transition
	for len(m.revealQ) > 0 && (max <= 0 || len(out) < max) {
		id := m.revealQ[0]
		m.revealQ = m.revealQ[1:]
		delete(m.queued, id)
		out = append(out, m.reveal(id, now))
	}
	for len(m.concealQ) > 0 && (max <= 0 || len(out) < max) {
		id := m.concealQ[0]
		m.concealQ = m.concealQ[1:]
		delete(m.queued, id)
		out = append(out, m.conceal(id, now))
	}
	return out
}

func (m *Manager) conceal(id entity.ID, now time.Time) Transition {
	tr := Transition{Kind: KindConceal, EntityID: id, At: now}
	g := m.sector.Grid(id)
	if g == nil {
		tr.Outcome, tr.Reason = OutcomeSkipped, "not revealed"
		return tr
	}
	tr.DisplayName, tr.OwnerID = g.DisplayName, g.OwnerID
	if c, _ := m.Concealability(id); c.Manual() != entity.Concealable {
		tr.Outcome, tr.Reason = OutcomeSkipped, c.Manual().String()
		return tr
	}
	if m.host == nil {
		tr.Outcome, tr.Reason = OutcomeFailed, ErrNoHost.Error()
		return tr
	}
	if err := m.host.Conceal(g); err != nil {
		m.log.Printf("conceal %d (%s): %v", id, g.DisplayName, err)
		tr.Outcome, tr.Reason = OutcomeFailed, err.Error()
		return tr
	}

	m.store.Put(recordOf(g, now))
	m.sector.RevealedEntityRemoved(g)
	m.sector.EntityRemoved(g)
	tr.Outcome = OutcomeDone
	return tr
}

func (m *Manager) reveal(id entity.ID, now time.Time) Transition {
	tr := Transition{Kind: KindReveal, EntityID: id, At: now}
	rec, ok := m.store.Get(id)
	if !ok {
		tr.Outcome, tr.Reason = OutcomeSkipped, "not concealed"
		return tr
	}
	tr.DisplayName, tr.OwnerID = rec.DisplayName, rec.OwnerID
	if m.host == nil {
		tr.Outcome, tr.Reason = OutcomeFailed, ErrNoHost.Error()
		return tr
	}
	if err := m.host.Reveal(rec); err != nil {
		m.log.Printf("reveal %d (%s): %v", id, rec.DisplayName, err)
		tr.Outcome, tr.Reason = OutcomeFailed, err.Error()
		return tr
	}
	// The host re-adds the grid, which brings it back into the sector.
	m.store.Delete(id)
	tr.Outcome = OutcomeDone
	return tr
}

// Forget drops the concealed record of id, for grids the host reports as
// back in simulation or deleted outright. Any queued reveal is cancelled.
func (m *Manager) Forget(id entity.ID) bool {
	if k, ok := m.queued[id]; ok && k == KindReveal {
		delete(m.queued, id)
		m.revealQ = removeID(m.revealQ, id)
	}
	return m.store.Delete(id)
}

// Restore loads records concealed by an earlier run. Ids the sector already
// tracks are skipped. It returns how many records were stored.
func (m *Manager) Restore(recs []Record) int {
	n := 0
	for _, r := range recs {
		if m.sector.Entity(r.ID) != nil {
			m.log.Printf("conceal: restore of %d skipped, entity is revealed", r.ID)
			continue
		}
		m.store.Put(r)
		n++
	}
	return n
}

// ConcealedGrid pairs a record with its current revealability.
type ConcealedGrid struct {
	Record
	Revealability entity.Revealability
}

func (m *Manager) ConcealedGrids() []ConcealedGrid {
	recs := m.store.All()
	out := make([]ConcealedGrid, 0, len(recs))
	for _, r := range recs {
		rv, _ := m.Revealability(r.ID)
		out = append(out, ConcealedGrid{Record: r, Revealability: rv})
	}
	return out
}

// ConcealedInSphere returns the concealed grids within sphere, by id.
func (m *Manager) ConcealedInSphere(sphere spatial.Sphere) []Record {
	return m.store.InSphere(sphere)
}

func removeID(q []entity.ID, id entity.ID) []entity.ID {
	out := q[:0]
	for _, v := range q {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
