package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventAutomationEnqueuing EventType = "automation_enqueuing"
	EventAutomationEnqueued  EventType = "automation_enqueued"
	EventAutomationDequeued  EventType = "automation_dequeued"
	EventAutomationError     EventType = "automation_error"
	EventAutomationCompleted EventType = "automation_completed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus
type EventService interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish sends an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
