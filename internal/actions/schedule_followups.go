package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// ScheduleFollowupsAction fans the saved note out to every followup worker:
// the per-line schedulers run concurrently, and the source and categorization
// jobs are enqueued alongside. Any scheduling failure fails the note job.
type ScheduleFollowupsAction struct {
	BaseAction
}

// NewScheduleFollowupsAction creates the schedule_all_followup_tasks action
func NewScheduleFollowupsAction(deps *Dependencies) Action {
	return &ScheduleFollowupsAction{BaseAction: newBase(ActionScheduleFollowups, deps)}
}

func (a *ScheduleFollowupsAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *ScheduleFollowupsAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Queues == nil {
		return nil, pipeerrors.MissingDependency(a.name, "queue service")
	}

	if payload.Options.ClearIngredientCache && a.deps.Ingredients != nil {
		if err := a.deps.Ingredients.ClearCache(ctx); err != nil {
			a.logger().Warn().Err(err).Str("note_id", payload.NoteID).Msg("Failed to clear ingredient parse cache")
		}
	}

	_, err = a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:          payload.ImportID,
		NoteID:            payload.NoteID,
		ContextName:       models.ContextScheduleFollowups,
		StartMessage:      "Scheduling followup tasks",
		CompletionMessage: "Followup tasks scheduled",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			if err := a.scheduleAll(ctx, data, payload, actx); err != nil {
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

// scheduleAll runs the per-kind schedulers concurrently and enqueues the
// source and categorization jobs. Fail-fast: the first error cancels the rest.
func (a *ScheduleFollowupsAction) scheduleAll(ctx context.Context, data json.RawMessage, payload *models.NotePipelineData, actx *models.ActionContext) error {
	schedulers := []Action{
		NewScheduleIngredientLinesAction(a.deps),
		NewScheduleInstructionLinesAction(a.deps),
		NewScheduleImagesAction(a.deps),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, scheduler := range schedulers {
		scheduler := scheduler
		g.Go(func() error {
			_, err := scheduler.Execute(gctx, data, actx)
			return err
		})
	}
	g.Go(func() error {
		return a.enqueueSourceJob(gctx, payload)
	})
	g.Go(func() error {
		return a.enqueueCategorizationJob(gctx, payload)
	})
	return g.Wait()
}

// enqueueSourceJob hands the evernote source string to the source queue.
// An absent source still enqueues: process_source marks the kind complete.
func (a *ScheduleFollowupsAction) enqueueSourceJob(ctx context.Context, payload *models.NotePipelineData) error {
	source := ""
	metadataID := ""
	if payload.File != nil {
		source = payload.File.EvernoteMetadata.Source
	}
	if payload.Note != nil {
		metadataID = payload.Note.EvernoteMetadataID
	}

	job := &models.SourceJobData{
		JobID:      fmt.Sprintf("%s-source", payload.NoteID),
		NoteID:     payload.NoteID,
		ImportID:   payload.ImportID,
		Source:     source,
		MetadataID: metadataID,
	}
	if err := a.deps.Queues.Add(ctx, common.QueueSource, ActionProcessSource, job, nil); err != nil {
		return pipeerrors.Newf(pipeerrors.KindTransientIO, a.name, "failed to enqueue source job: %v", err)
	}
	return nil
}

func (a *ScheduleFollowupsAction) enqueueCategorizationJob(ctx context.Context, payload *models.NotePipelineData) error {
	job := &models.CategorizationJobData{
		JobID:    fmt.Sprintf("%s-categorization", payload.NoteID),
		NoteID:   payload.NoteID,
		ImportID: payload.ImportID,
	}
	if payload.File != nil {
		job.Title = payload.File.Title
		job.Markdown = payload.File.Markdown
		job.Tags = payload.File.EvernoteMetadata.Tags
	}
	if err := a.deps.Queues.Add(ctx, common.QueueCategorization, ActionCategorizeNote, job, nil); err != nil {
		return pipeerrors.Newf(pipeerrors.KindTransientIO, a.name, "failed to enqueue categorization job: %v", err)
	}
	return nil
}
