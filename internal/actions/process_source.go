package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// ProcessSourceAction resolves the evernote source string into a deduplicated
// source record and links the note to it. URLs become web sources named by
// hostname; anything else becomes a book source. An empty source string is a
// clean no-op, but every outcome marks the source kind complete.
type ProcessSourceAction struct {
	BaseAction
}

// NewProcessSourceAction creates the process_source action
func NewProcessSourceAction(deps *Dependencies) Action {
	return &ProcessSourceAction{BaseAction: newBase(ActionProcessSource, deps)}
}

func (a *ProcessSourceAction) ValidateInput(data json.RawMessage) error {
	var job models.SourceJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if job.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *ProcessSourceAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	var job models.SourceJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Sources == nil {
		return nil, pipeerrors.MissingDependency(a.name, "source storage")
	}
	if a.deps.Notes == nil {
		return nil, pipeerrors.MissingDependency(a.name, "note storage")
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	_, err := a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:     job.ImportID,
		NoteID:       job.NoteID,
		ContextName:  models.ContextProcessSource,
		StartMessage: "Processing note source",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			return a.resolveSource(ctx, &job)
		},
		AdditionalBroadcasting: func(ctx context.Context, result interface{}) error {
			source := result.(*models.Source)
			message := "No source to process"
			if source != nil {
				message = fmt.Sprintf("Source recorded: %s", source.Name)
			}
			event := models.NewStatusEvent(job.ImportID, models.StatusCompleted, models.ContextProcessSource, message)
			event.NoteID = job.NoteID
			_, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, event)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	if err := a.deps.Tracker.MarkWorkerCompleted(job.NoteID, models.KindSource); err != nil {
		return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
	}
	return data, nil
}

// resolveSource upserts the source record and links it to the note. Returns
// nil for an empty source string.
func (a *ProcessSourceAction) resolveSource(ctx context.Context, job *models.SourceJobData) (*models.Source, error) {
	raw := strings.TrimSpace(job.Source)
	if raw == "" {
		return nil, nil
	}

	var source *models.Source
	var err error
	if a.deps.Sources.IsValidURL(raw) {
		source, err = a.deps.Sources.CreateOrFindSourceWithURL(ctx, raw)
	} else {
		source, err = a.deps.Sources.CreateOrFindSourceWithBook(ctx, raw)
	}
	if err != nil {
		return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
	}

	if err := a.deps.Notes.ConnectNoteToSource(ctx, job.NoteID, source.ID); err != nil {
		return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
	}

	if job.MetadataID != "" {
		if err := a.deps.Notes.UpsertEvernoteMetadataSource(ctx, job.MetadataID, raw); err != nil {
			return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
		}
	}

	a.logger().Info().
		Str("note_id", job.NoteID).
		Str("source_id", source.ID).
		Str("source_type", source.Type).
		Msg("Note linked to source")
	return source, nil
}
