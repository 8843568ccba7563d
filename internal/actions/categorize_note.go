package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// CategorizeNoteAction asks the categorize service for category labels and
// stores them on the note. Whatever happens, the action signals
// categorization ready so wait_for_categorization never blocks on a
// disabled or failed categorizer longer than it must.
type CategorizeNoteAction struct {
	BaseAction
}

// NewCategorizeNoteAction creates the categorize_note action
func NewCategorizeNoteAction(deps *Dependencies) Action {
	return &CategorizeNoteAction{BaseAction: newBase(ActionCategorizeNote, deps)}
}

func (a *CategorizeNoteAction) ValidateInput(data json.RawMessage) error {
	var job models.CategorizationJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if job.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *CategorizeNoteAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	var job models.CategorizationJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	if a.deps.Categorizer == nil || !a.deps.Categorizer.Enabled() {
		a.logger().Debug().Str("note_id", job.NoteID).Msg("Categorization disabled, marking ready")
		a.deps.Tracker.OnCategorizationReady(job.NoteID)
		return data, nil
	}

	_, err := a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:     job.ImportID,
		NoteID:       job.NoteID,
		ContextName:  models.ContextCategorization,
		StartMessage: "Categorizing note",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			categories, err := a.deps.Categorizer.Categorize(ctx, job.Title, job.Markdown, job.Tags)
			if err != nil {
				return nil, pipeerrors.New(pipeerrors.KindTransientIO, a.name, err)
			}
			if a.deps.Notes != nil && len(categories) > 0 {
				if err := a.deps.Notes.SetNoteCategories(ctx, job.NoteID, categories); err != nil {
					return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
				}
			}
			return categories, nil
		},
		AdditionalBroadcasting: func(ctx context.Context, result interface{}) error {
			categories := result.([]string)
			message := "No categories assigned"
			if len(categories) > 0 {
				message = fmt.Sprintf("Categorized: %s", strings.Join(categories, ", "))
			}
			event := models.NewStatusEvent(job.ImportID, models.StatusCompleted, models.ContextCategorization, message)
			event.NoteID = job.NoteID
			_, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, event)
			return err
		},
	})
	if err != nil {
		// The worker may still retry this job; only a delivered result (or a
		// final failure at the worker) should unblock the waiting pipeline
		return nil, err
	}

	a.deps.Tracker.OnCategorizationReady(job.NoteID)
	return data, nil
}
