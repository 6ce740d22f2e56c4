package events

import "time"

// Event defines the contract for all follow lifecycle events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "FOLLOW_STARTED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const (
	FollowStarted  = "FOLLOW_STARTED"
	FollowProgress = "FOLLOW_PROGRESS"
	FollowArrived  = "FOLLOW_ARRIVED"
	FollowStopped  = "FOLLOW_STOPPED"
	SourceLost     = "SOURCE_LOST"
)

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
