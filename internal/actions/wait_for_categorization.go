package actions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
	"github.com/ternarybob/skillet/internal/tracker"
)

// WaitForCategorizationAction blocks the note pipeline until the
// categorization worker reports ready or the configured bound lapses.
// This is the only bounded blocking wait in any pipeline; a timeout fails
// categorization without retry and leaves all other note state intact.
type WaitForCategorizationAction struct {
	BaseAction
}

// NewWaitForCategorizationAction creates the wait_for_categorization action
func NewWaitForCategorizationAction(deps *Dependencies) Action {
	a := &WaitForCategorizationAction{BaseAction: newBase(ActionWaitForCategorization, deps)}
	a.retryable = false
	return a
}

func (a *WaitForCategorizationAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *WaitForCategorizationAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	timeout := a.deps.Settings.CategorizationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	_, err = a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:          payload.ImportID,
		NoteID:            payload.NoteID,
		ContextName:       models.ContextCategorization,
		StartMessage:      "Waiting for categorization",
		CompletionMessage: "Categorization ready",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			err := a.deps.Tracker.WaitForCategorization(ctx, payload.NoteID, timeout)
			if errors.Is(err, tracker.ErrCategorizationTimeout) {
				a.broadcast(ctx, &models.StatusEvent{
					ImportID:  payload.ImportID,
					NoteID:    payload.NoteID,
					Status:    models.StatusFailed,
					Context:   models.ContextCategorization,
					Message:   "Categorization timed out",
					Timestamp: time.Now(),
				})
				return nil, pipeerrors.New(pipeerrors.KindExhausted, a.name, err)
			}
			if err != nil {
				return nil, err
			}
			return payload, nil
		},
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}
