package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state carried by a status event
type Status string

const (
	StatusAwaitingParsing Status = "AWAITING_PARSING"
	StatusProcessing      Status = "PROCESSING"
	StatusPending         Status = "PENDING"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
	// StatusCancelled marks cooperative cancellation; cancelled jobs never
	// emit FAILED
	StatusCancelled Status = "CANCELLED"
)

// Well-known event contexts. UIs group events by context; stage-start
// suffixes (e.g. parse_html_start) are contexts, not action names.
const (
	ContextImportReceived        = "import_received"
	ContextCleanHTML             = "clean_html"
	ContextParseHTMLStart        = "parse_html_start"
	ContextParseHTMLComplete     = "parse_html_complete"
	ContextParseHTMLIngredients  = "parse_html_ingredients"
	ContextParseHTMLInstructions = "parse_html_instructions"
	ContextSaveNote              = "save_note"
	ContextIngredientProcessing  = "ingredient_processing"
	ContextInstructionProcessing = "instruction_processing"
	ContextImageProcessing       = "image_processing"
	ContextCheckDuplicates       = "CHECK_DUPLICATES"
	ContextScheduleFollowups     = "SCHEDULE_ALL_FOLLOWUP_TASKS"
	ContextProcessSource         = "PROCESS_SOURCE"
	ContextCategorization        = "categorization"
	ContextWorkerCompleted       = "mark_note_worker_completed"
)

// StatusEvent is one entry in the append-only per-import event log.
// Field names follow the wire shape consumed by clients.
type StatusEvent struct {
	// Seq is assigned by the broadcaster; unique and increasing per importId
	Seq int64 `json:"seq,omitempty"`

	ImportID     string                 `json:"importId,omitempty"`
	NoteID       string                 `json:"noteId,omitempty"`
	Status       Status                 `json:"status"`
	Message      string                 `json:"message"`
	Context      string                 `json:"context"`
	IndentLevel  int                    `json:"indentLevel,omitempty"` // 0-2 for UI grouping
	CurrentCount *int                   `json:"currentCount,omitempty"`
	TotalCount   *int                   `json:"totalCount,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Validate checks the event is broadcastable
func (e *StatusEvent) Validate() error {
	switch e.Status {
	case StatusAwaitingParsing, StatusProcessing, StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
	default:
		return fmt.Errorf("unknown status: %q", e.Status)
	}
	if e.IndentLevel < 0 || e.IndentLevel > 2 {
		return fmt.Errorf("indent level must be 0-2, got %d", e.IndentLevel)
	}
	return nil
}

// WithCounts attaches progress counters to the event
func (e *StatusEvent) WithCounts(current, total int) *StatusEvent {
	e.CurrentCount = &current
	e.TotalCount = &total
	return e
}

// NewStatusEvent builds an event with the timestamp set
func NewStatusEvent(importID string, status Status, context, message string) *StatusEvent {
	return &StatusEvent{
		ImportID:  importID,
		Status:    status,
		Context:   context,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ImportEvent is the persisted form of a StatusEvent, keyed for replay
type ImportEvent struct {
	ID       string      `json:"id"` // <importId>:<seq>
	ImportID string      `json:"import_id" badgerhold:"index"`
	Seq      int64       `json:"seq"`
	Event    StatusEvent `json:"event"`
}
