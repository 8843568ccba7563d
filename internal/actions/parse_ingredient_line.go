package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// ParseIngredientLineAction runs the ingredient grammar over one reference,
// stores the split, hands the pattern hit to the tracking queue, and reports
// the line complete. Unmatched references are stored as-is with the raw text
// as the name; a parse miss is data, not an error.
type ParseIngredientLineAction struct {
	BaseAction
}

// NewParseIngredientLineAction creates the parse_ingredient_line action
func NewParseIngredientLineAction(deps *Dependencies) Action {
	return &ParseIngredientLineAction{BaseAction: newBase(ActionParseIngredientLine, deps)}
}

func (a *ParseIngredientLineAction) ValidateInput(data json.RawMessage) error {
	var job models.LineJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if err := job.Validate(); err != nil {
		return pipeerrors.InvalidInput(a.name, "%v", err)
	}
	return nil
}

func (a *ParseIngredientLineAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	var job models.LineJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Ingredients == nil {
		return nil, pipeerrors.MissingDependency(a.name, "ingredient parser")
	}
	if a.deps.Notes == nil {
		return nil, pipeerrors.MissingDependency(a.name, "note storage")
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	parsed, err := a.deps.Ingredients.ParseLine(ctx, job.Reference)
	if err != nil {
		return nil, pipeerrors.New(pipeerrors.KindTransientIO, a.name, err)
	}

	_, err = a.deps.Notes.UpdateIngredientLine(ctx, job.NoteID, job.LineIndex,
		parsed.Quantity, parsed.Unit, parsed.Name, "parsed", true)
	if err != nil {
		return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
	}

	a.enqueuePatternJob(ctx, &job, parsed)

	if err := a.deps.Tracker.MarkLineCompleted(job.NoteID, models.KindIngredient, job.LineIndex); err != nil {
		return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
	}
	a.broadcastProgress(ctx, &job)

	return data, nil
}

// enqueuePatternJob is best-effort observability: a full pattern queue never
// fails the ingredient line.
func (a *ParseIngredientLineAction) enqueuePatternJob(ctx context.Context, job *models.LineJobData, parsed *interfaces.ParsedIngredient) {
	if a.deps.Queues == nil {
		return
	}
	pattern := &models.PatternJobData{
		JobID:      fmt.Sprintf("%s-pattern-%d", job.NoteID, job.LineIndex),
		NoteID:     job.NoteID,
		LineIndex:  job.LineIndex,
		Reference:  job.Reference,
		PatternKey: parsed.PatternKey,
		Matched:    parsed.Matched,
	}
	if err := a.deps.Queues.Add(ctx, common.QueuePatternTracking, ActionTrackPattern, pattern, nil); err != nil {
		a.logger().Warn().Err(err).
			Str("note_id", job.NoteID).
			Int("line_index", job.LineIndex).
			Msg("Failed to enqueue pattern tracking job")
	}
}

func (a *ParseIngredientLineAction) broadcastProgress(ctx context.Context, job *models.LineJobData) {
	progress, err := a.deps.Tracker.Progress(job.NoteID, models.KindIngredient)
	if err != nil {
		a.logger().Warn().Err(err).Str("note_id", job.NoteID).Msg("Failed to read ingredient progress")
		return
	}

	status := models.StatusPending
	if progress.Complete {
		status = models.StatusCompleted
	}
	event := models.NewStatusEvent(job.ImportID, status, models.ContextIngredientProcessing,
		fmt.Sprintf("%d/%d ingredients", progress.Observed, progress.Expected))
	event.NoteID = job.NoteID
	event.IndentLevel = 2
	event.WithCounts(progress.Observed, progress.Expected)
	a.broadcast(ctx, event)
}
