package actions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/models"
)

func TestParseIngredientLine_StoresAndCompletes(t *testing.T) {
	deps, broadcaster, queue, notes := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))
	require.NoError(t, deps.Tracker.SetExpectedCounts("note-1", map[models.CompletionKind]int{models.KindIngredient: 1}))

	action := NewParseIngredientLineAction(deps)
	in := mustJSON(&models.LineJobData{
		JobID:     common.LineJobID("note-1", "ingredient", 0),
		NoteID:    "note-1",
		ImportID:  "imp-1",
		Reference: "2 cups flour",
		LineIndex: 0,
	})

	_, err := action.Execute(context.Background(), in, &models.ActionContext{AttemptNumber: 1})
	require.NoError(t, err)

	stored := notes.ingredients["note-1"][0]
	assert.Equal(t, "2 cups flour", stored[2], "fake parser keeps the reference as name")
	assert.Equal(t, "parsed", stored[3])

	patternJobs := queue.onQueue(common.QueuePatternTracking)
	require.Len(t, patternJobs, 1)
	assert.Equal(t, ActionTrackPattern, patternJobs[0].Action)
	var pattern models.PatternJobData
	require.NoError(t, json.Unmarshal(patternJobs[0].Payload, &pattern))
	assert.Equal(t, "name only", pattern.PatternKey)
	assert.True(t, pattern.Matched)

	progress, err := deps.Tracker.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.True(t, progress.Complete)

	events := broadcaster.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.StatusCompleted, events[0].Status)
	assert.Equal(t, "1/1 ingredients", events[0].Message)
}

func TestParseIngredientLine_PatternQueueFailureIsNotFatal(t *testing.T) {
	deps, _, queue, _ := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))
	require.NoError(t, deps.Tracker.SetExpectedCounts("note-1", map[models.CompletionKind]int{models.KindIngredient: 1}))
	queue.fail = true

	action := NewParseIngredientLineAction(deps)
	in := mustJSON(&models.LineJobData{NoteID: "note-1", ImportID: "imp-1", Reference: "salt", LineIndex: 0})

	_, err := action.Execute(context.Background(), in, &models.ActionContext{AttemptNumber: 1})
	require.NoError(t, err, "pattern tracking is observability, not a dependency")

	progress, err := deps.Tracker.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.True(t, progress.Complete)
}

func TestParseIngredientLine_RedeliveryCountsOnce(t *testing.T) {
	deps, _, _, _ := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))
	require.NoError(t, deps.Tracker.SetExpectedCounts("note-1", map[models.CompletionKind]int{models.KindIngredient: 2}))

	action := NewParseIngredientLineAction(deps)
	in := mustJSON(&models.LineJobData{NoteID: "note-1", ImportID: "imp-1", Reference: "salt", LineIndex: 0})

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := action.Execute(context.Background(), in, &models.ActionContext{AttemptNumber: attempt})
		require.NoError(t, err)
	}

	progress, err := deps.Tracker.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Observed, "replays of one line must count once")
}
