package entity

import (
	"sort"
	"strconv"
	"strings"

	"gardenperf.ai/internal/sim/spatial"
)

type (
	ID        int64
	PlayerID  int64
	FactionID int64
)

// NoFaction is the faction id of a player who belongs to no faction.
const NoFaction FactionID = 0

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// Capability declares which roles an entity takes part in. It is fixed at
// construction.
type Capability uint8

const (
	Observable Capability = 1 << iota
	Observing
	Grid
	Controllable
)

func (c Capability) Has(o Capability) bool { return c&o == o }

func (c Capability) String() string {
	if c == 0 {
		return "None"
	}
	var parts []string
	for _, p := range []struct {
		c    Capability
		name string
	}{
		{Observable, "Observable"},
		{Observing, "Observing"},
		{Grid, "Grid"},
		{Controllable, "Controllable"},
	} {
		if c.Has(p.c) {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "|")
}

// Attrs is what the host reports when an entity enters simulation.
type Attrs struct {
	ID          ID
	Caps        Capability
	DisplayName string
	Position    spatial.Vec3
	Bounds      spatial.AABB

	OwnerID        PlayerID
	RevealBlocked  bool
	InsideAsteroid bool
}

// Entity is a tracked, revealed entity. Role specific state is only
// meaningful when the matching capability is declared.
type Entity struct {
	id          ID
	caps        Capability
	DisplayName string

	position spatial.Vec3
	bounds   spatial.AABB
	speed    float64

	// Grid role.
	OwnerID           PlayerID
	RevealBlocked     bool
	InsideAsteroid    bool
	spawnUpdateNeeded bool
	spawnProtected    bool
	observers         int

	// Observing role.
	observeDirty bool
	observeMoved bool
	observed     map[ID]struct{}

	// Controllable role.
	Control Control
}

// New builds an entity from a host report. Observing and Grid entities are
// always Observable.
func New(s Attrs) *Entity {
	caps := s.Caps
	if caps&(Observing|Grid) != 0 {
		caps |= Observable
	}
	e := &Entity{
		id:             s.ID,
		caps:           caps,
		DisplayName:    s.DisplayName,
		position:       s.Position,
		bounds:         s.Bounds,
		OwnerID:        s.OwnerID,
		RevealBlocked:  s.RevealBlocked,
		InsideAsteroid: s.InsideAsteroid,
	}
	if caps.Has(Observing) {
		e.observed = map[ID]struct{}{}
		// A fresh observer has seen nothing yet.
		e.observeDirty = true
	}
	return e
}

func (e *Entity) ID() ID                  { return e.id }
func (e *Entity) Caps() Capability        { return e.caps }
func (e *Entity) IsObservable() bool      { return e.caps.Has(Observable) }
func (e *Entity) IsObserving() bool       { return e.caps.Has(Observing) }
func (e *Entity) IsGrid() bool            { return e.caps.Has(Grid) }
func (e *Entity) IsControllable() bool    { return e.caps.Has(Controllable) }
func (e *Entity) Position() spatial.Vec3  { return e.position }
func (e *Entity) Bounds() spatial.AABB    { return e.bounds }
func (e *Entity) Speed() float64          { return e.speed }
func (e *Entity) ObserverCount() int      { return e.observers }
func (e *Entity) SpawnProtected() bool    { return e.spawnProtected }
func (e *Entity) SpawnUpdateNeeded() bool { return e.spawnUpdateNeeded }

// Relocate records a movement report. Observers remember that they moved so
// their next update pass re-observes.
func (e *Entity) Relocate(pos spatial.Vec3, bounds spatial.AABB, speed float64) {
	e.position = pos
	e.bounds = bounds
	e.speed = speed
	if e.IsObserving() {
		e.observeMoved = true
	}
}

// IsControlled reports whether the control state machine holds the entity
// as moving or recently moved. Non-controllable entities are never controlled.
func (e *Entity) IsControlled() bool {
	return e.IsControllable() && e.Control.Controlled()
}

// Concealability summarises everything currently keeping the grid revealed.
// spawnOwner is whether the grid's owner is among the spawn owners.
func (e *Entity) Concealability(spawnOwner bool) Concealability {
	var c Concealability
	if e.IsControlled() {
		c |= ConcealControlled
	}
	if e.RevealBlocked {
		c |= ConcealRevealBlocked
	}
	if e.InsideAsteroid {
		c |= ConcealInsideAsteroid
	}
	if spawnOwner {
		c |= ConcealSpawnOwner
	}
	if e.observers > 0 {
		c |= ConcealObserved
	}
	return c
}

func (e *Entity) MarkSpawnUpdateNeeded() { e.spawnUpdateNeeded = true }

// RefreshSpawn consumes the spawn update flag. It reports whether the grid's
// spawn protection changed.
func (e *Entity) RefreshSpawn(protected bool) bool {
	e.spawnUpdateNeeded = false
	if e.spawnProtected == protected {
		return false
	}
	e.spawnProtected = protected
	return true
}

func (e *Entity) AddObserver() { e.observers++ }

func (e *Entity) RemoveObserver() {
	if e.observers > 0 {
		e.observers--
	}
}

func (e *Entity) MarkForObservingUpdate() {
	if e.IsObserving() {
		e.observeDirty = true
	}
}

func (e *Entity) DirtyForObservationUpdate() bool { return e.observeDirty }

// NeedsObservingUpdate is true when the observer was invalidated or moved
// since its last update pass.
func (e *Entity) NeedsObservingUpdate() bool { return e.observeDirty || e.observeMoved }

// SetObserved replaces the observed set and clears the update flags. It
// returns the ids that entered and left the set, sorted.
func (e *Entity) SetObserved(ids []ID) (entered, left []ID) {
	if !e.IsObserving() {
		return nil, nil
	}
	next := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
		if _, ok := e.observed[id]; !ok {
			entered = append(entered, id)
		}
	}
	for id := range e.observed {
		if _, ok := next[id]; !ok {
			left = append(left, id)
		}
	}
	e.observed = next
	e.observeDirty = false
	e.observeMoved = false
	sortIDs(entered)
	sortIDs(left)
	return entered, left
}

// Unobserve drops id from the observed set, for grids that left the sector.
// The observer is marked for its next update pass when id was present.
func (e *Entity) Unobserve(id ID) bool {
	if _, ok := e.observed[id]; !ok {
		return false
	}
	delete(e.observed, id)
	e.observeDirty = true
	return true
}

// Observes reports whether id is in the observed set.
func (e *Entity) Observes(id ID) bool {
	_, ok := e.observed[id]
	return ok
}

// Observed returns the sorted ids of the grids this observer currently sees.
func (e *Entity) Observed() []ID {
	out := make([]ID, 0, len(e.observed))
	for id := range e.observed {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// SortIDs sorts ids ascending in place.
func SortIDs(ids []ID) { sortIDs(ids) }
