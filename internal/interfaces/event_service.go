package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventNoteSaved fires after save_note persists; the cache listener
	// invalidates note keys and list queries on it
	EventNoteSaved EventType = "note_saved"
	// EventNoteTerminal fires once per note when the tracker reports
	// terminal; the import record listener closes out the import
	EventNoteTerminal EventType = "note_terminal"
	// EventImportFailed fires when a pipeline fails fatally
	EventImportFailed EventType = "import_failed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub bus that decouples pipeline
// side effects (cache invalidation, import bookkeeping) from the actions
// that trigger them
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
