package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// CheckDuplicatesAction compares the saved note's content hash and title
// against stored notes. Duplicates are reported, never fatal: the note stays
// and the candidates are surfaced for the user to resolve.
type CheckDuplicatesAction struct {
	BaseAction
}

// NewCheckDuplicatesAction creates the check_duplicates action
func NewCheckDuplicatesAction(deps *Dependencies) Action {
	return &CheckDuplicatesAction{BaseAction: newBase(ActionCheckDuplicates, deps)}
}

// ContentHash derives the duplicate-detection digest from cleaned markdown
func ContentHash(markdown string) string {
	sum := sha256.Sum256([]byte(markdown))
	return hex.EncodeToString(sum[:])
}

func (a *CheckDuplicatesAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *CheckDuplicatesAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Notes == nil {
		return nil, pipeerrors.MissingDependency(a.name, "note storage")
	}

	title := ""
	markdown := payload.Markdown
	if payload.File != nil {
		title = payload.File.Title
		if payload.File.Markdown != "" {
			markdown = payload.File.Markdown
		}
	}

	_, err = a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:     payload.ImportID,
		NoteID:       payload.NoteID,
		ContextName:  models.ContextCheckDuplicates,
		StartMessage: "Checking for duplicate notes",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			result, err := a.deps.Notes.FindDuplicates(ctx, ContentHash(markdown), title, payload.NoteID)
			if err != nil {
				return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
			}
			return result, nil
		},
		AdditionalBroadcasting: func(ctx context.Context, result interface{}) error {
			check := result.(*models.DuplicateCheckResult)

			message := "Verified no duplicates!"
			event := models.NewStatusEvent(payload.ImportID, models.StatusCompleted, models.ContextCheckDuplicates, message)
			event.NoteID = payload.NoteID
			if check.IsDuplicate {
				event.Message = fmt.Sprintf("Found %d possible duplicate(s)", len(check.Candidates))
				event.Metadata = map[string]interface{}{"candidates": check.Candidates}
			}
			_, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, event)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}
