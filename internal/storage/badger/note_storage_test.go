package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "skillet-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func carbonaraFile() *models.ParsedFile {
	created := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	return &models.ParsedFile{
		Title:    "Spaghetti Carbonara",
		Markdown: "# Spaghetti Carbonara\n\n200g spaghetti",
		Ingredients: []models.IngredientLine{
			{Reference: "200g spaghetti", BlockIndex: 0, LineIndex: 0},
			{Reference: "2 eggs", BlockIndex: 0, LineIndex: 1},
		},
		Instructions: []models.InstructionLine{
			{Reference: "Boil the pasta", LineIndex: 0},
		},
		EvernoteMetadata: models.EvernoteMetadata{
			Source:            "https://www.seriouseats.com/carbonara",
			Tags:              []string{"pasta", "italian"},
			OriginalCreatedAt: &created,
		},
	}
}

func TestCreateNoteWithEvernoteMetadata(t *testing.T) {
	manager := newTestManager(t)
	notes := manager.NoteStorage()
	ctx := context.Background()

	note, err := notes.CreateNoteWithEvernoteMetadata(ctx, carbonaraFile(), "imp-1")
	require.NoError(t, err)

	assert.NotEmpty(t, note.ID)
	assert.Equal(t, "imp-1", note.ImportID)
	assert.NotEmpty(t, note.ContentHash)
	assert.NotEmpty(t, note.EvernoteMetadataID)
	require.Len(t, note.ParsedIngredientLines, 2)
	assert.NotEmpty(t, note.ParsedIngredientLines[0].ID)
	assert.Equal(t, models.LineStatusPending, note.ParsedIngredientLines[0].Status)

	stored, meta, err := notes.GetNoteWithEvernoteMetadata(ctx, note.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, meta)
	assert.Equal(t, note.ID, meta.NoteID)
	assert.Equal(t, "https://www.seriouseats.com/carbonara", meta.Source)
	assert.Equal(t, []string{"pasta", "italian"}, meta.Tags)
}

func TestCreateNote_NoMetadataRecordWhenExportIsBare(t *testing.T) {
	manager := newTestManager(t)
	notes := manager.NoteStorage()
	ctx := context.Background()

	file := carbonaraFile()
	file.EvernoteMetadata = models.EvernoteMetadata{}
	note, err := notes.CreateNoteWithEvernoteMetadata(ctx, file, "imp-1")
	require.NoError(t, err)
	assert.Empty(t, note.EvernoteMetadataID)

	_, meta, err := notes.GetNoteWithEvernoteMetadata(ctx, note.ID)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestGetNoteWithEvernoteMetadata_Missing(t *testing.T) {
	manager := newTestManager(t)

	note, meta, err := manager.NoteStorage().GetNoteWithEvernoteMetadata(context.Background(), "note_missing")
	require.NoError(t, err)
	assert.Nil(t, note)
	assert.Nil(t, meta)
}

func TestUpdateIngredientLine(t *testing.T) {
	manager := newTestManager(t)
	notes := manager.NoteStorage()
	ctx := context.Background()

	note, err := notes.CreateNoteWithEvernoteMetadata(ctx, carbonaraFile(), "imp-1")
	require.NoError(t, err)

	lineID, err := notes.UpdateIngredientLine(ctx, note.ID, 1, "2", "", "eggs", "parsed", true)
	require.NoError(t, err)
	assert.Equal(t, note.ParsedIngredientLines[1].ID, lineID)

	stored, _, err := notes.GetNoteWithEvernoteMetadata(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", stored.ParsedIngredientLines[1].Quantity)
	assert.Equal(t, "eggs", stored.ParsedIngredientLines[1].Name)
	assert.Equal(t, "parsed", stored.ParsedIngredientLines[1].Status)

	_, err = notes.UpdateIngredientLine(ctx, note.ID, 99, "", "", "", "parsed", true)
	assert.Error(t, err, "unknown line index is an error")
}

func TestUpdateInstructionLine_AndCompletionStatus(t *testing.T) {
	manager := newTestManager(t)
	notes := manager.NoteStorage()
	ctx := context.Background()

	note, err := notes.CreateNoteWithEvernoteMetadata(ctx, carbonaraFile(), "imp-1")
	require.NoError(t, err)

	status, err := notes.GetInstructionCompletionStatus(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CompletedInstructions)
	assert.Equal(t, 1, status.TotalInstructions)
	assert.False(t, status.IsComplete)

	_, err = notes.UpdateInstructionLine(ctx, note.ID, 0, "Boil the pasta.", models.LineStatusCompleted, true)
	require.NoError(t, err)

	status, err = notes.GetInstructionCompletionStatus(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CompletedInstructions)
	assert.InDelta(t, 1.0, status.Progress, 0.001)
	assert.True(t, status.IsComplete)
}

func TestFindDuplicates(t *testing.T) {
	manager := newTestManager(t)
	notes := manager.NoteStorage()
	ctx := context.Background()

	first, err := notes.CreateNoteWithEvernoteMetadata(ctx, carbonaraFile(), "imp-1")
	require.NoError(t, err)

	// Same markdown, different import: hash match
	second, err := notes.CreateNoteWithEvernoteMetadata(ctx, carbonaraFile(), "imp-2")
	require.NoError(t, err)

	result, err := notes.FindDuplicates(ctx, second.ContentHash, second.Title, second.ID)
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Contains(t, result.Candidates, first.ID)
	assert.NotContains(t, result.Candidates, second.ID, "the note never matches itself")

	// Different content, same title: falls back to title match
	renamed := carbonaraFile()
	renamed.Markdown = "# different body"
	third, err := notes.CreateNoteWithEvernoteMetadata(ctx, renamed, "imp-3")
	require.NoError(t, err)

	result, err = notes.FindDuplicates(ctx, third.ContentHash, third.Title, third.ID)
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)

	// Unrelated note is clean
	result, err = notes.FindDuplicates(ctx, "no-such-hash", "Unseen Title", "")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Empty(t, result.Candidates)
}

func TestConnectNoteToSourceAndCategories(t *testing.T) {
	manager := newTestManager(t)
	notes := manager.NoteStorage()
	ctx := context.Background()

	note, err := notes.CreateNoteWithEvernoteMetadata(ctx, carbonaraFile(), "imp-1")
	require.NoError(t, err)

	require.NoError(t, notes.ConnectNoteToSource(ctx, note.ID, "src-1"))
	require.NoError(t, notes.SetNoteCategories(ctx, note.ID, []string{"italian", "pasta"}))

	stored, _, err := notes.GetNoteWithEvernoteMetadata(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "src-1", stored.SourceID)
	assert.Equal(t, []string{"italian", "pasta"}, stored.Categories)
}

func TestUpsertEvernoteMetadataSource(t *testing.T) {
	manager := newTestManager(t)
	notes := manager.NoteStorage()
	ctx := context.Background()

	note, err := notes.CreateNoteWithEvernoteMetadata(ctx, carbonaraFile(), "imp-1")
	require.NoError(t, err)

	require.NoError(t, notes.UpsertEvernoteMetadataSource(ctx, note.EvernoteMetadataID, "https://example.com/moved"))

	_, meta, err := notes.GetNoteWithEvernoteMetadata(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/moved", meta.Source)

	assert.Error(t, notes.UpsertEvernoteMetadataSource(ctx, "em_missing", "x"))
}

func TestGetNotes_NewestFirst(t *testing.T) {
	manager := newTestManager(t)
	notes := manager.NoteStorage()
	ctx := context.Background()

	first := carbonaraFile()
	first.Title = "First"
	_, err := notes.CreateNoteWithEvernoteMetadata(ctx, first, "imp-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	second := carbonaraFile()
	second.Title = "Second"
	_, err = notes.CreateNoteWithEvernoteMetadata(ctx, second, "imp-2")
	require.NoError(t, err)

	all, err := notes.GetNotes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Second", all[0].Title)
}
