package world

import (
	"sort"

	"gardenperf.ai/internal/sim/entity"
)

// Roster mirrors the host's faction membership. It answers the sector's
// membership queries directly and never derives spawn state itself.
type Roster struct {
	byPlayer  map[entity.PlayerID]entity.FactionID
	byFaction map[entity.FactionID]map[entity.PlayerID]struct{}
}

func NewRoster() *Roster {
	return &Roster{
		byPlayer:  map[entity.PlayerID]entity.FactionID{},
		byFaction: map[entity.FactionID]map[entity.PlayerID]struct{}{},
	}
}

// PlayerFaction implements sector.Factions.
func (r *Roster) PlayerFaction(p entity.PlayerID) (entity.FactionID, []entity.PlayerID, bool) {
	f, ok := r.byPlayer[p]
	if !ok || f == entity.NoFaction {
		return entity.NoFaction, nil, false
	}
	members := make([]entity.PlayerID, 0, len(r.byFaction[f]))
	for m := range r.byFaction[f] {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return f, members, true
}

// Set moves p to faction f (NoFaction removes it) and returns the previous
// faction.
func (r *Roster) Set(p entity.PlayerID, f entity.FactionID) entity.FactionID {
	prev := r.byPlayer[p]
	if prev == f {
		return prev
	}
	if members := r.byFaction[prev]; members != nil {
		delete(members, p)
		if len(members) == 0 {
			delete(r.byFaction, prev)
		}
	}
	if f == entity.NoFaction {
		delete(r.byPlayer, p)
		return prev
	}
	r.byPlayer[p] = f
	if r.byFaction[f] == nil {
		r.byFaction[f] = map[entity.PlayerID]struct{}{}
	}
	r.byFaction[f][p] = struct{}{}
	return prev
}

// FactionChange is one player's move between factions.
type FactionChange struct {
	Player   entity.PlayerID
	From, To entity.FactionID
}

// Replace swaps in a complete roster and reports every player whose
// faction differs from before, by player id.
func (r *Roster) Replace(factions map[entity.FactionID][]entity.PlayerID) []FactionChange {
	next := map[entity.PlayerID]entity.FactionID{}
	for f, members := range factions {
		if f == entity.NoFaction {
			continue
		}
		for _, m := range members {
			next[m] = f
		}
	}

	var changes []FactionChange
	for p, prev := range r.byPlayer {
		if next[p] != prev {
			changes = append(changes, FactionChange{Player: p, From: prev, To: next[p]})
		}
	}
	for p, f := range next {
		if _, ok := r.byPlayer[p]; !ok {
			changes = append(changes, FactionChange{Player: p, From: entity.NoFaction, To: f})
		}
	}
	for _, c := range changes {
		r.Set(c.Player, c.To)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Player < changes[j].Player })
	return changes
}

func (r *Roster) Faction(p entity.PlayerID) entity.FactionID { return r.byPlayer[p] }
