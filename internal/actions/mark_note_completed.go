package actions

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// MarkNoteCompletedAction reports the note worker's own completion to the
// tracker. When the dependent kinds have already settled this is the call
// that flips the note terminal.
type MarkNoteCompletedAction struct {
	BaseAction
}

// NewMarkNoteCompletedAction creates the mark_note_worker_completed action
func NewMarkNoteCompletedAction(deps *Dependencies) Action {
	return &MarkNoteCompletedAction{BaseAction: newBase(ActionMarkNoteCompleted, deps)}
}

func (a *MarkNoteCompletedAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *MarkNoteCompletedAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	_, err = a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:          payload.ImportID,
		NoteID:            payload.NoteID,
		ContextName:       models.ContextWorkerCompleted,
		StartMessage:      "Finalizing note",
		CompletionMessage: "Note processing completed",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			if err := a.deps.Tracker.MarkWorkerCompleted(payload.NoteID, models.KindNote); err != nil {
				return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
			}
			return payload, nil
		},
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}
