package conceal

import (
	"sort"
	"time"

	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/spatial"
)

// Record is what the concealed side keeps about a grid removed from
// simulation. It carries enough to ask the host to put the grid back.
type Record struct {
	ID             entity.ID       `json:"id"`
	DisplayName    string          `json:"display_name"`
	OwnerID        entity.PlayerID `json:"owner_id"`
	Position       spatial.Vec3    `json:"position"`
	Bounds         spatial.AABB    `json:"bounds"`
	RevealBlocked  bool            `json:"reveal_blocked,omitempty"`
	InsideAsteroid bool            `json:"inside_asteroid,omitempty"`
	ConcealedAt    time.Time       `json:"concealed_at"`

	SpawnNeeded bool `json:"spawn_needed,omitempty"`
}

func recordOf(g *entity.Entity, at time.Time) Record {
	return Record{
		ID:             g.ID(),
		DisplayName:    g.DisplayName,
		OwnerID:        g.OwnerID,
		Position:       g.Position(),
		Bounds:         g.Bounds(),
		RevealBlocked:  g.RevealBlocked,
		InsideAsteroid: g.InsideAsteroid,
		ConcealedAt:    at,
	}
}

// Store holds the concealed grids, indexed by id and by bounds.
type Store struct {
	records map[entity.ID]*Record
	tree    *spatial.Tree[entity.ID]

	// spawnOwner reports whether a player currently needs its grids for
	// spawning.
	spawnOwner func(entity.PlayerID) bool
}

func NewStore(spawnOwner func(entity.PlayerID) bool) *Store {
	return &Store{
		records:    map[entity.ID]*Record{},
		tree:       spatial.NewTree[entity.ID](0),
		spawnOwner: spawnOwner,
	}
}

func (s *Store) Len() int { return len(s.records) }

func (s *Store) Has(id entity.ID) bool {
	_, ok := s.records[id]
	return ok
}

func (s *Store) Get(id entity.ID) (Record, bool) {
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Put stores r, replacing any record with the same id.
func (s *Store) Put(r Record) {
	if s.spawnOwner != nil {
		r.SpawnNeeded = s.spawnOwner(r.OwnerID)
	}
	if _, ok := s.records[r.ID]; ok {
		s.tree.Move(r.ID, r.Bounds)
	} else {
		s.tree.Add(r.ID, r.Bounds)
	}
	cp := r
	s.records[r.ID] = &cp
}

func (s *Store) Delete(id entity.ID) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	s.tree.Remove(id)
	return true
}

// UpdateSpawn re-evaluates every record's spawn need against the current
// spawn owners.
func (s *Store) UpdateSpawn() {
	if s.spawnOwner == nil {
		return
	}
	for _, r := range s.records {
		r.SpawnNeeded = s.spawnOwner(r.OwnerID)
	}
}

// InSphere returns the records whose bounds intersect sphere, by id.
func (s *Store) InSphere(sphere spatial.Sphere) []Record {
	ids := s.tree.QuerySphere(sphere)
	entity.SortIDs(ids)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.records[id])
	}
	return out
}

// All returns every record, by id.
func (s *Store) All() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
