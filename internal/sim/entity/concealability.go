package entity

import "strings"

// Concealability lists the reasons a revealed grid is kept in simulation.
// The zero value means the grid may be concealed.
type Concealability uint8

const (
	ConcealControlled Concealability = 1 << iota
	ConcealRevealBlocked
	ConcealInsideAsteroid
	ConcealSpawnOwner
	ConcealObserved
)

const Concealable Concealability = 0

// Manual drops the observation reason, which only gates automatic
// concealment.
func (c Concealability) Manual() Concealability { return c &^ ConcealObserved }

func (c Concealability) String() string {
	if c == Concealable {
		return "Concealable"
	}
	return joinFlags(uint8(c), []string{"Controlled", "RevealBlocked", "InsideAsteroid", "SpawnOwner", "Observed"})
}

// Revealability lists the reasons a concealed grid wants to come back.
// The zero value means nothing asks for it.
type Revealability uint8

const (
	RevealObserved Revealability = 1 << iota
	RevealSpawnNeeded
)

const Dormant Revealability = 0

func (r Revealability) String() string {
	if r == Dormant {
		return "Dormant"
	}
	return joinFlags(uint8(r), []string{"Observed", "SpawnNeeded"})
}

func joinFlags(v uint8, names []string) string {
	var parts []string
	for i, n := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}
