package models

import "time"

// Import states
const (
	ImportStateReceived   = "received"
	ImportStateProcessing = "processing"
	ImportStateCompleted  = "completed"
	ImportStateFailed     = "failed"
	ImportStateCancelled  = "cancelled"
)

// ImportRecord summarizes one HTML submission so clients can list imports
// and replay their event streams after reconnect.
type ImportRecord struct {
	ImportID string `json:"import_id"`
	Source   string `json:"source,omitempty"` // Filename or URL submitted
	NoteID   string `json:"note_id,omitempty" badgerhold:"index"`
	State    string `json:"state" badgerhold:"index"`

	EventCount       int    `json:"event_count"`
	IngredientCount  int    `json:"ingredient_count"`
	InstructionCount int    `json:"instruction_count"`
	Error            string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewImportRecord creates a record in the received state
func NewImportRecord(importID, source string) *ImportRecord {
	now := time.Now()
	return &ImportRecord{
		ImportID:  importID,
		Source:    source,
		State:     ImportStateReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the import has finished, successfully or not
func (r *ImportRecord) IsTerminal() bool {
	switch r.State {
	case ImportStateCompleted, ImportStateFailed, ImportStateCancelled:
		return true
	}
	return false
}
