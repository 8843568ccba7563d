package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/models"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return New(arbor.NewLogger())
}

func TestInitialize_Idempotent(t *testing.T) {
	tr := newTestTracker(t)

	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))

	err := tr.InitializeNoteCompletion("note-1", "imp-2")
	assert.Error(t, err, "re-initializing with a different import must fail")
}

func TestMarkLineCompleted_DedupsByLineIndex(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))
	require.NoError(t, tr.SetExpectedCounts("note-1", map[models.CompletionKind]int{models.KindIngredient: 2}))

	// Replayed delivery of the same line must count once
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.MarkLineCompleted("note-1", models.KindIngredient, 0))
	}

	progress, err := tr.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Observed)
	assert.False(t, progress.Complete)

	require.NoError(t, tr.MarkLineCompleted("note-1", models.KindIngredient, 1))
	progress, err = tr.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Observed)
	assert.True(t, progress.Complete)
}

func TestMarkLineCompleted_NOverExpectedSettles(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))
	require.NoError(t, tr.SetExpectedCounts("note-1", map[models.CompletionKind]int{models.KindInstruction: 3}))

	kindCompletions := 0
	tr.OnKindComplete(func(noteID, importID string, kind models.CompletionKind) {
		if kind == models.KindInstruction {
			kindCompletions++
		}
	})

	// Each line delivered twice
	for round := 0; round < 2; round++ {
		for i := 0; i < 3; i++ {
			require.NoError(t, tr.MarkLineCompleted("note-1", models.KindInstruction, i))
		}
	}

	progress, err := tr.Progress("note-1", models.KindInstruction)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Observed)
	assert.True(t, progress.Complete)
	assert.Equal(t, 1, kindCompletions, "kind completion must fire exactly once")
}

func TestSetExpectedCounts_SetOnce(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))

	counts := map[models.CompletionKind]int{models.KindIngredient: 2}
	require.NoError(t, tr.SetExpectedCounts("note-1", counts))
	require.NoError(t, tr.SetExpectedCounts("note-1", counts), "same value is a no-op")

	err := tr.SetExpectedCounts("note-1", map[models.CompletionKind]int{models.KindIngredient: 5})
	assert.Error(t, err, "different value is a programming error")
}

func TestSetExpectedCounts_ZeroCompletesImmediately(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))

	require.NoError(t, tr.SetExpectedCounts("note-1", map[models.CompletionKind]int{
		models.KindIngredient:  0,
		models.KindInstruction: 0,
	}))

	progress, err := tr.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.True(t, progress.Complete)
	progress, err = tr.Progress("note-1", models.KindInstruction)
	require.NoError(t, err)
	assert.True(t, progress.Complete)
}

func TestLinesBeforeExpectedCounts(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))

	// Line workers can outrun the scheduler's SetExpectedCounts call
	require.NoError(t, tr.MarkLineCompleted("note-1", models.KindIngredient, 0))
	require.NoError(t, tr.MarkLineCompleted("note-1", models.KindIngredient, 1))

	progress, err := tr.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.False(t, progress.Complete, "kind cannot complete before expected count is known")

	require.NoError(t, tr.SetExpectedCounts("note-1", map[models.CompletionKind]int{models.KindIngredient: 2}))
	progress, err = tr.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.True(t, progress.Complete)
}

func TestTerminal_FiresExactlyOnce(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))

	var mu sync.Mutex
	terminalCalls := 0
	tr.OnTerminal(func(noteID, importID string) {
		mu.Lock()
		terminalCalls++
		mu.Unlock()
		assert.Equal(t, "note-1", noteID)
		assert.Equal(t, "imp-1", importID)
	})

	require.NoError(t, tr.SetExpectedCounts("note-1", map[models.CompletionKind]int{
		models.KindIngredient:  1,
		models.KindInstruction: 1,
	}))
	require.NoError(t, tr.MarkLineCompleted("note-1", models.KindIngredient, 0))
	require.NoError(t, tr.MarkLineCompleted("note-1", models.KindInstruction, 0))
	assert.False(t, tr.IsNoteTerminal("note-1"), "note kind still outstanding")

	require.NoError(t, tr.MarkWorkerCompleted("note-1", models.KindNote))
	assert.True(t, tr.IsNoteTerminal("note-1"))

	// Replays after terminal change nothing
	require.NoError(t, tr.MarkWorkerCompleted("note-1", models.KindNote))
	require.NoError(t, tr.MarkLineCompleted("note-1", models.KindIngredient, 0))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, terminalCalls)
}

func TestTerminal_OptionalKindsNotRequired(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))

	// Image and source never report; the note still completes
	require.NoError(t, tr.SetExpectedCounts("note-1", map[models.CompletionKind]int{
		models.KindIngredient:  0,
		models.KindInstruction: 0,
	}))
	require.NoError(t, tr.MarkWorkerCompleted("note-1", models.KindNote))

	assert.True(t, tr.IsNoteTerminal("note-1"))
}

func TestWaitForCategorization_Ready(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))

	done := make(chan error, 1)
	go func() {
		done <- tr.WaitForCategorization(context.Background(), "note-1", 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	tr.OnCategorizationReady("note-1")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not unblock after OnCategorizationReady")
	}

	// Already-ready notes return immediately
	assert.NoError(t, tr.WaitForCategorization(context.Background(), "note-1", time.Millisecond))
}

func TestWaitForCategorization_Timeout(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))

	err := tr.WaitForCategorization(context.Background(), "note-1", 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrCategorizationTimeout))
}

func TestConcurrentLineCompletions(t *testing.T) {
	tr := newTestTracker(t)
	const lines = 100
	require.NoError(t, tr.InitializeNoteCompletion("note-1", "imp-1"))
	require.NoError(t, tr.SetExpectedCounts("note-1", map[models.CompletionKind]int{models.KindIngredient: lines}))

	var wg sync.WaitGroup
	for i := 0; i < lines; i++ {
		// Two workers racing on every line
		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, tr.MarkLineCompleted("note-1", models.KindIngredient, i))
			}(i)
		}
	}
	wg.Wait()

	progress, err := tr.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.Equal(t, lines, progress.Observed)
	assert.True(t, progress.Complete)
}

func TestSweep_DropsStaleRecords(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.InitializeNoteCompletion("note-old", "imp-1"))

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, tr.InitializeNoteCompletion("note-new", "imp-2"))

	count := tr.Sweep(25 * time.Millisecond)
	assert.Equal(t, 1, count)

	_, err := tr.Progress("note-old", models.KindIngredient)
	assert.True(t, errors.Is(err, ErrNotInitialized))
	_, err = tr.Progress("note-new", models.KindIngredient)
	assert.NoError(t, err)
}

func TestUntrackedNote(t *testing.T) {
	tr := newTestTracker(t)

	err := tr.MarkLineCompleted("missing", models.KindIngredient, 0)
	assert.True(t, errors.Is(err, ErrNotInitialized))
	assert.False(t, tr.IsNoteTerminal("missing"))
}
