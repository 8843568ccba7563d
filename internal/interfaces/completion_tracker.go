package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/skillet/internal/models"
)

// KindProgress is a point-in-time view of one kind's completion state
type KindProgress struct {
	Observed    int
	Expected    int
	ExpectedSet bool
	Complete    bool
}

// CompletionTracker is the authority on whether a note's multi-worker
// processing is finished. All operations are idempotent and serialized per
// noteId; cross-note updates run in parallel.
type CompletionTracker interface {
	// InitializeNoteCompletion creates the record. Re-initializing with the
	// same importId is a no-op; a different importId is an error.
	InitializeNoteCompletion(noteID, importID string) error

	// SetExpectedCounts pins the fan-out size per kind. Once per kind;
	// repeating the same value is a no-op, a different value is a
	// programming error. A zero count completes the kind immediately.
	SetExpectedCounts(noteID string, counts map[models.CompletionKind]int) error

	// MarkLineCompleted records one line completion, deduplicated per
	// (kind, lineIndex). Reaching the expected count completes the kind.
	MarkLineCompleted(noteID string, kind models.CompletionKind, lineIndex int) error

	// MarkWorkerCompleted is the set-once completion for non-counted kinds
	MarkWorkerCompleted(noteID string, kind models.CompletionKind) error

	// Progress reports observed/expected for a kind
	Progress(noteID string, kind models.CompletionKind) (KindProgress, error)

	// IsNoteTerminal is true iff all required kinds are complete and
	// observed == expected for every counted kind that was scheduled
	IsNoteTerminal(noteID string) bool

	// OnCategorizationReady unblocks WaitForCategorization for the note
	OnCategorizationReady(noteID string)

	// WaitForCategorization blocks until categorization is ready, the
	// timeout lapses, or the context ends
	WaitForCategorization(ctx context.Context, noteID string, timeout time.Duration) error

	// OnTerminal registers a callback fired exactly once per note when it
	// becomes terminal
	OnTerminal(fn func(noteID, importID string))

	// Sweep drops records idle for longer than maxAge and returns the count
	Sweep(maxAge time.Duration) int
}
