// Package tracker holds the per-note completion state machine. It is the
// authority on whether a note's multi-worker processing is finished:
// independently-progressing workers report line completions and set-once
// worker flags, and the tracker decides the single terminal transition.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// ErrNotInitialized is returned for notes without a completion record
var ErrNotInitialized = errors.New("note completion not initialized")

// ErrCategorizationTimeout is returned when WaitForCategorization's bound lapses
var ErrCategorizationTimeout = errors.New("categorization wait timed out")

// record is one note's completion state. All access is serialized under the
// record's own mutex; cross-note updates run in parallel.
type record struct {
	mu sync.Mutex

	importID string

	expected    map[models.CompletionKind]int
	expectedSet map[models.CompletionKind]bool
	observed    map[models.CompletionKind]int
	// seenLines dedups at-least-once line deliveries per (kind, lineIndex)
	seenLines map[models.CompletionKind]map[int]struct{}

	workerDone map[models.CompletionKind]bool

	categorizationReady bool
	categorizationCh    chan struct{} // closed when categorization is ready

	terminal    bool
	lastTouched time.Time
}

func newRecord(importID string) *record {
	return &record{
		importID:         importID,
		expected:         make(map[models.CompletionKind]int),
		expectedSet:      make(map[models.CompletionKind]bool),
		observed:         make(map[models.CompletionKind]int),
		seenLines:        make(map[models.CompletionKind]map[int]struct{}),
		workerDone:       make(map[models.CompletionKind]bool),
		categorizationCh: make(chan struct{}),
		lastTouched:      time.Now(),
	}
}

// Tracker implements interfaces.CompletionTracker
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record
	logger  arbor.ILogger

	hookMu        sync.RWMutex
	terminalHooks []func(noteID, importID string)
	kindHooks     []func(noteID, importID string, kind models.CompletionKind)
}

// New creates the tracker
func New(logger arbor.ILogger) *Tracker {
	return &Tracker{
		records: make(map[string]*record),
		logger:  logger,
	}
}

// InitializeNoteCompletion creates the record. Re-initializing with the same
// importId is a no-op; a different importId is an error.
func (t *Tracker) InitializeNoteCompletion(noteID, importID string) error {
	if noteID == "" {
		return fmt.Errorf("note ID is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.records[noteID]; ok {
		existing.mu.Lock()
		defer existing.mu.Unlock()
		if existing.importID != importID {
			return fmt.Errorf("note %s already tracked for import %s, got %s", noteID, existing.importID, importID)
		}
		return nil
	}

	t.records[noteID] = newRecord(importID)
	t.logger.Debug().
		Str("note_id", noteID).
		Str("import_id", importID).
		Msg("Note completion tracking initialized")
	return nil
}

// SetExpectedCounts pins the fan-out size per kind. Set-once per kind:
// repeating the same value is a no-op, a different value is a programming
// error. A zero count completes the kind immediately.
func (t *Tracker) SetExpectedCounts(noteID string, counts map[models.CompletionKind]int) error {
	rec, err := t.recordFor(noteID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	var completed []models.CompletionKind
	for kind, count := range counts {
		if count < 0 {
			rec.mu.Unlock()
			return fmt.Errorf("expected count for %s must be >= 0, got %d", kind, count)
		}
		if rec.expectedSet[kind] {
			if rec.expected[kind] != count {
				rec.mu.Unlock()
				return fmt.Errorf("expected count for note %s kind %s already set to %d, got %d",
					noteID, kind, rec.expected[kind], count)
			}
			continue
		}
		rec.expectedSet[kind] = true
		rec.expected[kind] = count

		if rec.completeKindLocked(kind) {
			completed = append(completed, kind)
		}
	}
	rec.lastTouched = time.Now()
	terminal := rec.checkTerminalLocked()
	importID := rec.importID
	rec.mu.Unlock()

	for _, kind := range completed {
		t.fireKindComplete(noteID, importID, kind)
	}
	if terminal {
		t.fireTerminal(noteID, importID)
	}
	return nil
}

// MarkLineCompleted records one line completion, deduplicated per
// (kind, lineIndex). Reaching the expected count completes the kind.
func (t *Tracker) MarkLineCompleted(noteID string, kind models.CompletionKind, lineIndex int) error {
	rec, err := t.recordFor(noteID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	seen := rec.seenLines[kind]
	if seen == nil {
		seen = make(map[int]struct{})
		rec.seenLines[kind] = seen
	}
	if _, dup := seen[lineIndex]; dup {
		rec.mu.Unlock()
		return nil
	}
	seen[lineIndex] = struct{}{}
	rec.observed[kind]++

	if rec.expectedSet[kind] && rec.observed[kind] > rec.expected[kind] {
		// The dedup set makes this unreachable for well-formed fan-outs;
		// seeing it means a scheduler enqueued more lines than it declared.
		over := rec.observed[kind]
		rec.observed[kind] = rec.expected[kind]
		rec.mu.Unlock()
		return fmt.Errorf("note %s kind %s observed %d completions but expected %d",
			noteID, kind, over, rec.expected[kind])
	}

	completed := rec.completeKindLocked(kind)
	rec.lastTouched = time.Now()
	terminal := rec.checkTerminalLocked()
	importID := rec.importID
	rec.mu.Unlock()

	if completed {
		t.fireKindComplete(noteID, importID, kind)
	}
	if terminal {
		t.fireTerminal(noteID, importID)
	}
	return nil
}

// MarkWorkerCompleted is the set-once completion for non-counted kinds
func (t *Tracker) MarkWorkerCompleted(noteID string, kind models.CompletionKind) error {
	rec, err := t.recordFor(noteID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	completed := false
	if !rec.workerDone[kind] {
		rec.workerDone[kind] = true
		completed = true
	}
	rec.lastTouched = time.Now()
	terminal := rec.checkTerminalLocked()
	importID := rec.importID
	rec.mu.Unlock()

	if completed {
		t.fireKindComplete(noteID, importID, kind)
	}
	if terminal {
		t.fireTerminal(noteID, importID)
	}
	return nil
}

// Progress reports observed/expected for a kind
func (t *Tracker) Progress(noteID string, kind models.CompletionKind) (interfaces.KindProgress, error) {
	rec, err := t.recordFor(noteID)
	if err != nil {
		return interfaces.KindProgress{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return interfaces.KindProgress{
		Observed:    rec.observed[kind],
		Expected:    rec.expected[kind],
		ExpectedSet: rec.expectedSet[kind],
		Complete:    rec.workerDone[kind],
	}, nil
}

// IsNoteTerminal is true iff all required kinds are complete and
// observed == expected for every counted kind that was scheduled
func (t *Tracker) IsNoteTerminal(noteID string) bool {
	rec, err := t.recordFor(noteID)
	if err != nil {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.terminal
}

// OnCategorizationReady unblocks WaitForCategorization for the note
func (t *Tracker) OnCategorizationReady(noteID string) {
	rec, err := t.recordFor(noteID)
	if err != nil {
		t.logger.Warn().Str("note_id", noteID).Msg("Categorization ready for untracked note")
		return
	}

	rec.mu.Lock()
	if !rec.categorizationReady {
		rec.categorizationReady = true
		close(rec.categorizationCh)
	}
	rec.lastTouched = time.Now()
	rec.mu.Unlock()
}

// WaitForCategorization blocks until categorization is ready, the timeout
// lapses, or the context ends
func (t *Tracker) WaitForCategorization(ctx context.Context, noteID string, timeout time.Duration) error {
	rec, err := t.recordFor(noteID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	ready := rec.categorizationReady
	ch := rec.categorizationCh
	rec.mu.Unlock()
	if ready {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s for note %s", ErrCategorizationTimeout, timeout, noteID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTerminal registers a callback fired exactly once per note when it
// becomes terminal
func (t *Tracker) OnTerminal(fn func(noteID, importID string)) {
	t.hookMu.Lock()
	t.terminalHooks = append(t.terminalHooks, fn)
	t.hookMu.Unlock()
}

// OnKindComplete registers a callback fired when a kind finishes for a note.
// Used to emit the aggregate completion event.
func (t *Tracker) OnKindComplete(fn func(noteID, importID string, kind models.CompletionKind)) {
	t.hookMu.Lock()
	t.kindHooks = append(t.kindHooks, fn)
	t.hookMu.Unlock()
}

// ActiveCount returns the number of completion records currently held
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Sweep drops records idle for longer than maxAge and returns the count
func (t *Tracker) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for noteID, rec := range t.records {
		rec.mu.Lock()
		stale := rec.lastTouched.Before(cutoff)
		rec.mu.Unlock()
		if stale {
			delete(t.records, noteID)
			count++
		}
	}
	if count > 0 {
		t.logger.Info().Int("count", count).Msg("Swept stale completion records")
	}
	return count
}

// completeKindLocked marks the kind done when its counted progress is
// satisfied. Returns true on the false->true transition. Caller holds rec.mu.
func (r *record) completeKindLocked(kind models.CompletionKind) bool {
	if r.workerDone[kind] {
		return false
	}
	if !r.expectedSet[kind] || r.observed[kind] < r.expected[kind] {
		return false
	}
	r.workerDone[kind] = true
	return true
}

// checkTerminalLocked evaluates the terminal condition and returns true on
// the single false->true transition. Caller holds rec.mu.
func (r *record) checkTerminalLocked() bool {
	if r.terminal {
		return false
	}
	for _, kind := range models.RequiredKinds() {
		if !r.workerDone[kind] {
			return false
		}
	}
	for _, kind := range models.CountedKinds() {
		if r.expectedSet[kind] && r.observed[kind] != r.expected[kind] {
			return false
		}
	}
	r.terminal = true
	return true
}

func (t *Tracker) fireTerminal(noteID, importID string) {
	t.hookMu.RLock()
	hooks := make([]func(string, string), len(t.terminalHooks))
	copy(hooks, t.terminalHooks)
	t.hookMu.RUnlock()

	t.logger.Info().
		Str("note_id", noteID).
		Str("import_id", importID).
		Msg("Note processing terminal")
	for _, hook := range hooks {
		hook(noteID, importID)
	}
}

func (t *Tracker) fireKindComplete(noteID, importID string, kind models.CompletionKind) {
	t.hookMu.RLock()
	hooks := make([]func(string, string, models.CompletionKind), len(t.kindHooks))
	copy(hooks, t.kindHooks)
	t.hookMu.RUnlock()

	t.logger.Debug().
		Str("note_id", noteID).
		Str("kind", string(kind)).
		Msg("Completion kind finished")
	for _, hook := range hooks {
		hook(noteID, importID, kind)
	}
}

func (t *Tracker) recordFor(noteID string) (*record, error) {
	t.mu.RLock()
	rec, ok := t.records[noteID]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, noteID)
	}
	return rec, nil
}

// Ensure Tracker implements CompletionTracker interface
var _ interfaces.CompletionTracker = (*Tracker)(nil)
