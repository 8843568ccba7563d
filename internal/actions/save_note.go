package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/skillet/internal/cache"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// SaveNoteAction persists the parsed file as a note, assigns the noteId,
// initializes completion tracking, and invalidates the note's cached reads.
type SaveNoteAction struct {
	BaseAction
}

// NewSaveNoteAction creates the save_note action
func NewSaveNoteAction(deps *Dependencies) Action {
	return &SaveNoteAction{BaseAction: newBase(ActionSaveNote, deps)}
}

func (a *SaveNoteAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.File == nil {
		return pipeerrors.InvalidInput(a.name, "parsed file is required before save")
	}
	if payload.File.Title == "" {
		return pipeerrors.InvalidInput(a.name, "parsed file has no title")
	}
	return nil
}

func (a *SaveNoteAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Notes == nil {
		return nil, pipeerrors.MissingDependency(a.name, "note storage")
	}

	result, err := a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:          payload.ImportID,
		ContextName:       models.ContextSaveNote,
		StartMessage:      "Saving note",
		CompletionMessage: "Note saved",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			note, err := a.deps.Notes.CreateNoteWithEvernoteMetadata(ctx, payload.File, payload.ImportID)
			if err != nil {
				return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
			}

			if a.deps.Tracker != nil {
				if err := a.deps.Tracker.InitializeNoteCompletion(note.ID, payload.ImportID); err != nil {
					return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
				}
			}

			a.invalidateNoteCaches(ctx, note.ID)
			a.publishNoteSaved(ctx, note, payload.ImportID)

			next := *payload
			next.NoteID = note.ID
			next.Note = note
			return &next, nil
		},
	})
	if err != nil {
		return nil, err
	}

	return result.(*models.NotePipelineData).ToJSON()
}

// invalidateNoteCaches drops the note's direct keys and flushes list queries.
// Invalidation failures are logged and swallowed - they never fail the write.
func (a *SaveNoteAction) invalidateNoteCaches(ctx context.Context, noteID string) {
	if a.deps.Cache == nil {
		return
	}

	if err := a.deps.Cache.Delete(ctx, cache.NoteMetadataKey(noteID)); err != nil {
		a.logger().Warn().Err(err).Str("note_id", noteID).Msg("Failed to invalidate note metadata cache")
	}
	if err := a.deps.Cache.Delete(ctx, cache.NoteStatusKey(noteID)); err != nil {
		a.logger().Warn().Err(err).Str("note_id", noteID).Msg("Failed to invalidate note status cache")
	}
	if _, err := a.deps.Cache.InvalidateByPattern(ctx, cache.PrefixDatabaseQuery); err != nil {
		a.logger().Warn().Err(err).Str("note_id", noteID).Msg("Failed to invalidate query caches")
	}
}

func (a *SaveNoteAction) publishNoteSaved(ctx context.Context, note *models.Note, importID string) {
	if a.deps.Events == nil {
		return
	}
	err := a.deps.Events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventNoteSaved,
		Payload: map[string]string{
			"note_id":   note.ID,
			"import_id": importID,
			"title":     note.Title,
		},
	})
	if err != nil {
		a.logger().Warn().Err(err).Str("note_id", note.ID).Msg(fmt.Sprintf("Failed to publish %s event", interfaces.EventNoteSaved))
	}
}
