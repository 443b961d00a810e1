package eventbus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TopicTransitions = "gardenperf.transitions"
	TopicSessions    = "gardenperf.sessions"
)

const (
	EventTypeTransition = "conceal.transition"
	EventTypeSession    = "conceal.session"
)

type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	WorldID   string          `json:"world_id"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEvent reuses eventID when non-empty so downstream consumers can
// deduplicate against the other sinks.
func NewEvent(eventID, eventType, source, worldID string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}
	return Event{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		WorldID:   worldID,
		Payload:   b,
	}, nil
}
