package common

import (
	"fmt"

	"github.com/google/uuid"
)

// NewImportID generates a unique import correlation ID with the "imp_" prefix
// Format: imp_<uuid>
func NewImportID() string {
	return "imp_" + uuid.New().String()
}

// NewNoteID generates a unique note ID with the "note_" prefix
// Format: note_<uuid>
func NewNoteID() string {
	return "note_" + uuid.New().String()
}

// NewSourceID generates a unique source ID with the "src_" prefix
func NewSourceID() string {
	return "src_" + uuid.New().String()
}

// LineJobID derives the deterministic job ID for a per-line fan-out job.
// Re-enqueueing the same line always yields the same ID, so queue-level
// dedup makes fan-out idempotent.
func LineJobID(noteID, kind string, lineIndex int) string {
	return fmt.Sprintf("%s-%s-%d", noteID, kind, lineIndex)
}

// CompletionCheckJobID derives the job ID for a kind's completion-check sentinel.
func CompletionCheckJobID(noteID, kind string) string {
	return fmt.Sprintf("%s-%s-completion-check", noteID, kind)
}
