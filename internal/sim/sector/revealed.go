package sector

import (
	"io"
	"log"
	"sort"

	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/spatial"
)

// Factions resolves faction membership from the host. Results are used once
// and never stored by the sector.
type Factions interface {
	// PlayerFaction returns the faction of p and every member of it. ok is
	// false when p belongs to no faction.
	PlayerFaction(p entity.PlayerID) (id entity.FactionID, members []entity.PlayerID, ok bool)
}

// SpawnUpdater is the concealed side's hook for re-evaluating spawn
// exemptions after the spawn owner set changed.
type SpawnUpdater interface {
	UpdateSpawn()
}

type Options struct {
	Logger    *log.Logger
	Factions  Factions
	Concealed SpawnUpdater

	// VisibilityMeters is the radius of the invalidation sweep around
	// revealed entities that were added or removed.
	VisibilityMeters float64
}

// Revealed tracks every simulated, non-concealed entity of one world
// instance together with the players whose presence keeps grids revealed.
//
// Revealed is not safe for concurrent use; the world loop owns it.
type Revealed struct {
	log       *log.Logger
	factions  Factions
	concealed SpawnUpdater

	visibility float64

	activePlayers map[entity.PlayerID]struct{}
	spawnOwners   map[entity.PlayerID]struct{}
	spawnDirty    bool

	entities     map[entity.ID]*entity.Entity
	observing    map[entity.ID]*entity.Entity
	grids        map[entity.ID]*entity.Entity
	controllable map[entity.ID]*entity.Entity
	// spawnPending holds grids whose spawn update flag is set.
	spawnPending map[entity.ID]*entity.Entity

	observingTree *spatial.Tree[entity.ID]
	gridTree      *spatial.Tree[entity.ID]

	subs map[EventKind][]func(Event)
}

func New(o Options) *Revealed {
	logger := o.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Revealed{
		log:           logger,
		factions:      o.Factions,
		concealed:     o.Concealed,
		visibility:    o.VisibilityMeters,
		activePlayers: map[entity.PlayerID]struct{}{},
		spawnOwners:   map[entity.PlayerID]struct{}{},
		entities:      map[entity.ID]*entity.Entity{},
		observing:     map[entity.ID]*entity.Entity{},
		grids:         map[entity.ID]*entity.Entity{},
		controllable:  map[entity.ID]*entity.Entity{},
		spawnPending:  map[entity.ID]*entity.Entity{},
		observingTree: spatial.NewTree[entity.ID](spatial.DefaultMargin),
		gridTree:      spatial.NewTree[entity.ID](spatial.DefaultMargin),
	}
}

func (s *Revealed) SetConcealed(c SpawnUpdater) { s.concealed = c }

func (s *Revealed) SetVisibility(meters float64) { s.visibility = meters }
func (s *Revealed) Visibility() float64          { return s.visibility }

// Players

func (s *Revealed) PlayerLoggedIn(p entity.PlayerID, f entity.FactionID) {
	if _, ok := s.activePlayers[p]; ok {
		s.log.Printf("sector: login for already tracked player %d (faction %d) ignored", p, f)
		return
	}
	s.activePlayers[p] = struct{}{}
	s.spawnDirty = true
	s.log.Printf("sector: player %d logged in (faction %d), active=%d", p, f, len(s.activePlayers))
}

func (s *Revealed) PlayerLoggedOut(p entity.PlayerID, f entity.FactionID) {
	if _, ok := s.activePlayers[p]; !ok {
		s.log.Printf("sector: logout for untracked player %d (faction %d) ignored", p, f)
		return
	}
	delete(s.activePlayers, p)
	s.spawnDirty = true
	s.log.Printf("sector: player %d logged out (faction %d), active=%d", p, f, len(s.activePlayers))
}

// PlayerChangedFactions only schedules a spawn owner rebuild; membership is
// read from the host at rebuild time.
func (s *Revealed) PlayerChangedFactions(p entity.PlayerID, from, to entity.FactionID) {
	s.spawnDirty = true
}

func (s *Revealed) IsActive(p entity.PlayerID) bool {
	_, ok := s.activePlayers[p]
	return ok
}

func (s *Revealed) ActivePlayers() []entity.PlayerID { return sortedPlayers(s.activePlayers) }

// Entity lifecycle

// EntityAdded starts tracking e in every index its capabilities call for.
func (s *Revealed) EntityAdded(e *entity.Entity) {
	if e == nil {
		return
	}
	id := e.ID()
	if _, ok := s.entities[id]; ok {
		s.log.Printf("sector: entity %d already added", id)
		return
	}
	s.entities[id] = e
	if e.IsControllable() {
		s.controllable[id] = e
	}
	if e.IsObserving() {
		s.rememberObserving(e)
	}
	if e.IsGrid() {
		s.rememberGrid(e)
	}
	s.emit(Event{Kind: EventEntityAdded, EntityID: id, Name: e.DisplayName})
}

// EntityMoved refreshes the recorded bounds of e in its indices.
func (s *Revealed) EntityMoved(e *entity.Entity) {
	if e == nil {
		return
	}
	id := e.ID()
	if _, ok := s.entities[id]; !ok {
		s.log.Printf("sector: move for untracked entity %d ignored", id)
		return
	}
	if _, ok := s.observing[id]; ok {
		s.observingTree.Move(id, e.Bounds())
	}
	if _, ok := s.grids[id]; ok {
		s.gridTree.Move(id, e.Bounds())
	}
}

// EntityRemoved purges e from every dictionary and index.
func (s *Revealed) EntityRemoved(e *entity.Entity) {
	if e == nil {
		return
	}
	id := e.ID()
	if _, ok := s.entities[id]; !ok {
		s.log.Printf("sector: remove for untracked entity %d ignored", id)
		return
	}
	delete(s.entities, id)
	delete(s.controllable, id)
	if e.IsObserving() {
		s.forgetObserving(e)
	}
	if e.IsGrid() {
		s.forgetGrid(e)
	}
	s.emit(Event{Kind: EventEntityRemoved, EntityID: id, Name: e.DisplayName})
}

func (s *Revealed) rememberObserving(e *entity.Entity) {
	id := e.ID()
	if _, ok := s.observing[id]; ok {
		s.log.Printf("sector: observing entity %d already added", id)
		return
	}
	s.observing[id] = e
	s.observingTree.Add(id, e.Bounds())
}

func (s *Revealed) forgetObserving(e *entity.Entity) {
	id := e.ID()
	if _, ok := s.observing[id]; !ok {
		s.log.Printf("sector: observing entity %d not stored", id)
		return
	}
	delete(s.observing, id)
	s.observingTree.Remove(id)
	// Release the grids this observer was holding.
	for _, gid := range e.Observed() {
		if g := s.grids[gid]; g != nil {
			g.RemoveObserver()
		}
	}
}

func (s *Revealed) rememberGrid(e *entity.Entity) {
	id := e.ID()
	if _, ok := s.grids[id]; ok {
		s.log.Printf("sector: grid %d already added", id)
		return
	}
	s.grids[id] = e
	s.gridTree.Add(id, e.Bounds())
	// A grid joining after the last rebuild still needs its spawn state.
	e.MarkSpawnUpdateNeeded()
	s.spawnPending[id] = e
}

func (s *Revealed) forgetGrid(e *entity.Entity) {
	id := e.ID()
	if _, ok := s.grids[id]; !ok {
		s.log.Printf("sector: grid %d not stored", id)
		return
	}
	delete(s.grids, id)
	delete(s.spawnPending, id)
	s.gridTree.Remove(id)
	for _, o := range s.observing {
		o.Unobserve(id)
	}
}

// Control notifications

func (s *Revealed) ControllableEntityControlled(e *entity.Entity) {
	s.emit(Event{Kind: EventControlAcquired, EntityID: e.ID(), Name: e.DisplayName})
}

func (s *Revealed) ControllableEntityReleased(e *entity.Entity) {
	s.emit(Event{Kind: EventControlReleased, EntityID: e.ID(), Name: e.DisplayName})
}

// Visibility invalidation

// RevealedEntityAdded marks the observers near e for a later update pass.
func (s *Revealed) RevealedEntityAdded(e *entity.Entity) {
	n := s.markNearbyObservers(e.Position())
	s.emit(Event{Kind: EventRevealedAdded, EntityID: e.ID(), Name: e.DisplayName, Count: n})
}

// RevealedEntityRemoved marks the observers near e for a later update pass.
func (s *Revealed) RevealedEntityRemoved(e *entity.Entity) {
	n := s.markNearbyObservers(e.Position())
	s.emit(Event{Kind: EventRevealedRemoved, EntityID: e.ID(), Name: e.DisplayName, Count: n})
}

// markNearbyObservers is needed because observers otherwise only re-observe
// when they move themselves.
func (s *Revealed) markNearbyObservers(pos spatial.Vec3) int {
	nearby := s.ObservingInSphere(spatial.Sphere{Center: pos, Radius: s.visibility})
	for _, o := range nearby {
		o.MarkForObservingUpdate()
	}
	return len(nearby)
}

// Spawn owners

func (s *Revealed) SpawnOwnersDirty() bool { return s.spawnDirty }

// UpdateSpawnOwnersIfNeeded rebuilds the spawn owner set when a login,
// logout or faction change happened since the last rebuild. It reports
// whether a rebuild ran.
func (s *Revealed) UpdateSpawnOwnersIfNeeded() bool {
	if !s.spawnDirty {
		return false
	}
	s.updateSpawnOwners()
	s.spawnDirty = false
	return true
}

func (s *Revealed) updateSpawnOwners() {
	owners := make(map[entity.PlayerID]struct{}, len(s.activePlayers))
	for p := range s.activePlayers {
		if s.factions != nil {
			if _, members, ok := s.factions.PlayerFaction(p); ok {
				for _, m := range members {
					owners[m] = struct{}{}
				}
				continue
			}
		}
		owners[p] = struct{}{}
	}
	s.spawnOwners = owners

	for id, g := range s.grids {
		g.MarkSpawnUpdateNeeded()
		s.spawnPending[id] = g
	}
	if s.concealed != nil {
		s.concealed.UpdateSpawn()
	}
	s.log.Printf("sector: spawn owners updated, %d owners for %d active players", len(owners), len(s.activePlayers))
	s.emit(Event{Kind: EventSpawnOwnersUpdated, Count: len(owners)})
}

// SpawnOwnerNeeded reports whether owner, or a faction mate, is online.
func (s *Revealed) SpawnOwnerNeeded(owner entity.PlayerID) bool {
	_, ok := s.spawnOwners[owner]
	return ok
}

func (s *Revealed) SpawnOwners() []entity.PlayerID { return sortedPlayers(s.spawnOwners) }

// NotifySpawnExemption raises the debug event for a grid whose spawn
// protection flipped during its update pass.
func (s *Revealed) NotifySpawnExemption(e *entity.Entity) {
	s.emit(Event{Kind: EventSpawnExemptionChanged, EntityID: e.ID(), Name: e.DisplayName})
}

// Queries

// ObservableInSphere returns the tracked grids intersecting sphere, by id.
func (s *Revealed) ObservableInSphere(sphere spatial.Sphere) []*entity.Entity {
	return s.resolve(s.gridTree.QuerySphere(sphere), s.grids)
}

// ObservingInSphere returns the tracked observers intersecting sphere, by id.
func (s *Revealed) ObservingInSphere(sphere spatial.Sphere) []*entity.Entity {
	return s.resolve(s.observingTree.QuerySphere(sphere), s.observing)
}

func (s *Revealed) resolve(ids []entity.ID, from map[entity.ID]*entity.Entity) []*entity.Entity {
	entity.SortIDs(ids)
	out := make([]*entity.Entity, 0, len(ids))
	for _, id := range ids {
		if e := from[id]; e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (s *Revealed) Entity(id entity.ID) *entity.Entity { return s.entities[id] }
func (s *Revealed) Grid(id entity.ID) *entity.Entity   { return s.grids[id] }

func (s *Revealed) IsObservingTracked(id entity.ID) bool { return s.observingTree.Has(id) }
func (s *Revealed) IsGridTracked(id entity.ID) bool      { return s.gridTree.Has(id) }

// Entities returns every tracked entity, by id.
func (s *Revealed) Entities() []*entity.Entity { return sortedEntities(s.entities) }

// RevealedGrids returns every tracked grid, by id.
func (s *Revealed) RevealedGrids() []*entity.Entity { return sortedEntities(s.grids) }

// ObservingEntities returns every tracked observer, by id.
func (s *Revealed) ObservingEntities() []*entity.Entity { return sortedEntities(s.observing) }

// TakeSpawnPending returns the grids flagged for a spawn update since the
// last call, by id, and forgets them.
func (s *Revealed) TakeSpawnPending() []*entity.Entity {
	if len(s.spawnPending) == 0 {
		return nil
	}
	out := sortedEntities(s.spawnPending)
	clear(s.spawnPending)
	return out
}

// EachControllable calls fn for every tracked controllable entity in no
// particular order. fn must not add or remove entities.
func (s *Revealed) EachControllable(fn func(e *entity.Entity)) {
	for _, e := range s.controllable {
		fn(e)
	}
}

// EachObserving calls fn for every tracked observer in no particular order.
// fn must not add or remove entities.
func (s *Revealed) EachObserving(fn func(o *entity.Entity)) {
	for _, o := range s.observing {
		fn(o)
	}
}

// EachGrid calls fn for every tracked grid in no particular order. fn must
// not add or remove entities.
func (s *Revealed) EachGrid(fn func(g *entity.Entity)) {
	for _, g := range s.grids {
		fn(g)
	}
}

func (s *Revealed) Counts() (entities, observing, grids int) {
	return len(s.entities), len(s.observing), len(s.grids)
}

func sortedEntities(m map[entity.ID]*entity.Entity) []*entity.Entity {
	out := make([]*entity.Entity, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	SortByID(out)
	return out
}

// SortByID orders es by entity id in place.
func SortByID(es []*entity.Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i].ID() < es[j].ID() })
}

func sortedPlayers(m map[entity.PlayerID]struct{}) []entity.PlayerID {
	out := make([]entity.PlayerID, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
