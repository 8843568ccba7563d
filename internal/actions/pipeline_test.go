package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/skillet/internal/models"
)

func buildNames(t *testing.T, entry string, payload interface{}) []string {
	t.Helper()
	f := NewFactory()
	require.NoError(t, RegisterDefaults(f))
	deps, _, _, _ := testDeps()

	job := &models.Job{ActionName: entry, Payload: mustJSON(payload)}
	pipeline, err := BuildPipeline(job, f, deps)
	require.NoError(t, err)

	names := make([]string, 0, len(pipeline))
	for _, a := range pipeline {
		names = append(names, a.Name())
	}
	return names
}

func TestBuildPipeline_NoteChain(t *testing.T) {
	names := buildNames(t, ActionCleanHTML, &models.NotePipelineData{Content: "<html></html>"})
	assert.Equal(t, []string{
		ActionCleanHTML,
		ActionParseHTML,
		ActionSaveNote,
		ActionScheduleFollowups,
		ActionCheckDuplicates,
		ActionWaitForCategorization,
		ActionMarkNoteCompleted,
	}, names)
}

func TestBuildPipeline_SkipFollowupsTruncatesAfterSave(t *testing.T) {
	payload := &models.NotePipelineData{
		Content: "<html></html>",
		Options: models.PipelineOptions{SkipFollowupTasks: true},
	}
	names := buildNames(t, ActionCleanHTML, payload)
	assert.Equal(t, []string{ActionCleanHTML, ActionParseHTML, ActionSaveNote}, names)
}

func TestBuildPipeline_InstructionChain(t *testing.T) {
	names := buildNames(t, ActionFormatInstructionLine, &models.LineJobData{NoteID: "note-1"})
	assert.Equal(t, []string{ActionFormatInstructionLine, ActionSaveInstructionLine}, names)
}

func TestBuildPipeline_SingleActionEntries(t *testing.T) {
	for _, entry := range []string{
		ActionParseIngredientLine,
		ActionProcessSource,
		ActionProcessImage,
		ActionTrackPattern,
		ActionCategorizeNote,
		ActionCheckIngredients,
		ActionCheckInstructions,
	} {
		names := buildNames(t, entry, map[string]string{"note_id": "note-1"})
		assert.Equal(t, []string{entry}, names, "entry %s", entry)
	}
}

func TestBuildPipeline_UnknownEntry(t *testing.T) {
	f := NewFactory()
	require.NoError(t, RegisterDefaults(f))
	deps, _, _, _ := testDeps()

	job := &models.Job{ActionName: "save_note", Payload: mustJSON(map[string]string{})}
	_, err := BuildPipeline(job, f, deps)
	assert.Error(t, err, "save_note is not a pipeline entry")
}
