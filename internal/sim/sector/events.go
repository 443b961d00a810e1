package sector

import "gardenperf.ai/internal/sim/entity"

type EventKind uint8

const (
	EventEntityAdded EventKind = iota + 1
	EventEntityRemoved
	EventControlAcquired
	EventControlReleased
	EventRevealedAdded
	EventRevealedRemoved
	EventSpawnOwnersUpdated
	EventSpawnExemptionChanged
)

func (k EventKind) String() string {
	switch k {
	case EventEntityAdded:
		return "ENTITY_ADDED"
	case EventEntityRemoved:
		return "ENTITY_REMOVED"
	case EventControlAcquired:
		return "CONTROL_ACQUIRED"
	case EventControlReleased:
		return "CONTROL_RELEASED"
	case EventRevealedAdded:
		return "REVEALED_ADDED"
	case EventRevealedRemoved:
		return "REVEALED_REMOVED"
	case EventSpawnOwnersUpdated:
		return "SPAWN_OWNERS_UPDATED"
	case EventSpawnExemptionChanged:
		return "SPAWN_EXEMPTION_CHANGED"
	}
	return "UNKNOWN"
}

// Event is a debug-facing notification raised by the sector.
type Event struct {
	Kind     EventKind `json:"kind"`
	EntityID entity.ID `json:"entity_id,omitempty"`
	Name     string    `json:"name,omitempty"`
	// Count is the number of observers marked (revealed events) or spawn
	// owners (spawn updates).
	Count int `json:"count,omitempty"`
}

// Subscribe registers fn for events of kind. Subscribers run synchronously
// on the sector's goroutine in registration order.
func (s *Revealed) Subscribe(kind EventKind, fn func(Event)) {
	if fn == nil {
		return
	}
	if s.subs == nil {
		s.subs = map[EventKind][]func(Event){}
	}
	s.subs[kind] = append(s.subs[kind], fn)
}

// SubscribeAll registers fn for every event kind.
func (s *Revealed) SubscribeAll(fn func(Event)) {
	for k := EventEntityAdded; k <= EventSpawnExemptionChanged; k++ {
		s.Subscribe(k, fn)
	}
}

func (s *Revealed) emit(ev Event) {
	for _, fn := range s.subs[ev.Kind] {
		fn(ev)
	}
}
