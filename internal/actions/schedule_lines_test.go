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

func notePayloadWithLines(ingredients, instructions int) *models.NotePipelineData {
	file := &models.ParsedFile{Title: "Pasta"}
	for i := 0; i < ingredients; i++ {
		file.Ingredients = append(file.Ingredients, models.IngredientLine{
			Reference: "ingredient", LineIndex: i,
		})
	}
	for i := 0; i < instructions; i++ {
		file.Instructions = append(file.Instructions, models.InstructionLine{
			Reference: "instruction", LineIndex: i,
		})
	}
	return &models.NotePipelineData{
		Content:  "<html></html>",
		ImportID: "imp-1",
		NoteID:   "note-1",
		File:     file,
	}
}

func TestScheduleIngredientLines_FanOut(t *testing.T) {
	deps, broadcaster, queue, _ := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))

	action := NewScheduleIngredientLinesAction(deps)
	_, err := action.Execute(context.Background(), mustJSON(notePayloadWithLines(3, 0)),
		&models.ActionContext{AttemptNumber: 1})
	require.NoError(t, err)

	jobs := queue.onQueue(common.QueueIngredient)
	require.Len(t, jobs, 4, "3 line jobs plus the sentinel")

	for i := 0; i < 3; i++ {
		assert.Equal(t, ActionParseIngredientLine, jobs[i].Action)
		var line models.LineJobData
		require.NoError(t, json.Unmarshal(jobs[i].Payload, &line))
		assert.Equal(t, common.LineJobID("note-1", "ingredient", i), line.JobID)
		assert.Equal(t, "imp-1", line.ImportID)
	}

	assert.Equal(t, ActionCheckIngredients, jobs[3].Action)
	var sentinel models.CompletionCheckJobData
	require.NoError(t, json.Unmarshal(jobs[3].Payload, &sentinel))
	assert.Equal(t, common.CompletionCheckJobID("note-1", "ingredient"), sentinel.JobID)
	assert.Equal(t, models.KindIngredient, sentinel.Kind)

	progress, err := deps.Tracker.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Expected)
	assert.True(t, progress.ExpectedSet)

	events := broadcaster.all()
	require.Len(t, events, 1)
	assert.Equal(t, "0/3 ingredients", events[0].Message)
	assert.Equal(t, models.StatusPending, events[0].Status)
	assert.Equal(t, 2, events[0].IndentLevel)
}

func TestScheduleInstructionLines_UsesInstructionQueue(t *testing.T) {
	deps, _, queue, _ := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))

	action := NewScheduleInstructionLinesAction(deps)
	_, err := action.Execute(context.Background(), mustJSON(notePayloadWithLines(0, 2)),
		&models.ActionContext{AttemptNumber: 1})
	require.NoError(t, err)

	jobs := queue.onQueue(common.QueueInstruction)
	require.Len(t, jobs, 3)
	assert.Equal(t, ActionFormatInstructionLine, jobs[0].Action)
	assert.Equal(t, ActionCheckInstructions, jobs[2].Action)
	assert.Empty(t, queue.onQueue(common.QueueIngredient))
}

func TestScheduleLines_EmptyCompletesKindWithoutJobs(t *testing.T) {
	deps, broadcaster, queue, _ := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))

	payload := notePayloadWithLines(0, 0)
	action := NewScheduleIngredientLinesAction(deps)
	out, err := action.Execute(context.Background(), mustJSON(payload),
		&models.ActionContext{AttemptNumber: 1})
	require.NoError(t, err)
	assert.JSONEq(t, string(mustJSON(payload)), string(out), "payload passes through unchanged")

	assert.Empty(t, queue.onQueue(common.QueueIngredient), "no jobs and no sentinel for an empty list")
	assert.Empty(t, broadcaster.all())

	progress, err := deps.Tracker.Progress("note-1", models.KindIngredient)
	require.NoError(t, err)
	assert.True(t, progress.Complete, "a zero count completes the kind immediately")
}

func TestScheduleImages_NoSentinel(t *testing.T) {
	deps, _, queue, _ := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))

	payload := notePayloadWithLines(0, 0)
	payload.File.ImageRefs = []models.ImageRef{
		{URL: "https://example.com/a.jpg", LineIndex: 0},
		{URL: "https://example.com/b.png", LineIndex: 1},
	}

	action := NewScheduleImagesAction(deps)
	_, err := action.Execute(context.Background(), mustJSON(payload),
		&models.ActionContext{AttemptNumber: 1})
	require.NoError(t, err)

	jobs := queue.onQueue(common.QueueImage)
	require.Len(t, jobs, 2, "image fan-out schedules no sentinel")
	for _, j := range jobs {
		assert.Equal(t, ActionProcessImage, j.Action)
	}

	progress, err := deps.Tracker.Progress("note-1", models.KindImage)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Expected)
}

func TestScheduleFollowups_EnqueuesSourceAndCategorization(t *testing.T) {
	deps, _, queue, _ := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))

	payload := notePayloadWithLines(2, 2)
	payload.File.EvernoteMetadata.Source = "https://example.com/recipe"

	action := NewScheduleFollowupsAction(deps)
	_, err := action.Execute(context.Background(), mustJSON(payload),
		&models.ActionContext{AttemptNumber: 1})
	require.NoError(t, err)

	assert.Len(t, queue.onQueue(common.QueueIngredient), 3)
	assert.Len(t, queue.onQueue(common.QueueInstruction), 3)

	sourceJobs := queue.onQueue(common.QueueSource)
	require.Len(t, sourceJobs, 1)
	var sourceJob models.SourceJobData
	require.NoError(t, json.Unmarshal(sourceJobs[0].Payload, &sourceJob))
	assert.Equal(t, "https://example.com/recipe", sourceJob.Source)

	catJobs := queue.onQueue(common.QueueCategorization)
	require.Len(t, catJobs, 1)
	assert.Equal(t, ActionCategorizeNote, catJobs[0].Action)
}

func TestScheduleFollowups_QueueFailureFailsJob(t *testing.T) {
	deps, _, queue, _ := testDeps()
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "imp-1"))
	queue.fail = true

	action := NewScheduleFollowupsAction(deps)
	_, err := action.Execute(context.Background(), mustJSON(notePayloadWithLines(1, 1)),
		&models.ActionContext{AttemptNumber: 1})
	assert.Error(t, err)
}
