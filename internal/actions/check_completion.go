package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// checkCompletionAction is the per-kind completion sentinel. It observes
// tracker progress and asks the worker to redeliver it on its own backoff
// schedule until the kind completes or the check budget runs out. The
// sentinel never mutates tracker state; it only reports.
type checkCompletionAction struct {
	BaseAction
	kind models.CompletionKind
}

// NewCheckIngredientCompletionAction creates the check_ingredient_completion action
func NewCheckIngredientCompletionAction(deps *Dependencies) Action {
	a := &checkCompletionAction{
		BaseAction: newBase(ActionCheckIngredients, deps),
		kind:       models.KindIngredient,
	}
	a.retryable = false
	return a
}

// NewCheckInstructionCompletionAction creates the check_instruction_completion action
func NewCheckInstructionCompletionAction(deps *Dependencies) Action {
	a := &checkCompletionAction{
		BaseAction: newBase(ActionCheckInstructions, deps),
		kind:       models.KindInstruction,
	}
	a.retryable = false
	return a
}

func (a *checkCompletionAction) ValidateInput(data json.RawMessage) error {
	var job models.CompletionCheckJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if err := job.Validate(); err != nil {
		return pipeerrors.InvalidInput(a.name, "%v", err)
	}
	return nil
}

func (a *checkCompletionAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	var job models.CompletionCheckJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	progress, err := a.deps.Tracker.Progress(job.NoteID, a.kind)
	if err != nil {
		return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
	}

	if progress.Complete {
		event := models.NewStatusEvent(job.ImportID, models.StatusCompleted,
			string(a.kind)+"_processing",
			fmt.Sprintf("%d/%d %ss", progress.Observed, progress.Expected, a.kind))
		event.NoteID = job.NoteID
		event.IndentLevel = 2
		event.WithCounts(progress.Observed, progress.Expected)
		a.broadcast(ctx, event)

		a.logger().Info().
			Str("note_id", job.NoteID).
			Str("kind", string(a.kind)).
			Int("observed", progress.Observed).
			Msg("Completion check settled")
		return data, nil
	}

	attempt := actx.AttemptNumber
	if attempt < 1 {
		attempt = 1
	}
	if attempt > a.maxChecks() {
		a.logger().Warn().
			Str("note_id", job.NoteID).
			Str("kind", string(a.kind)).
			Int("observed", progress.Observed).
			Int("expected", progress.Expected).
			Int("checks", attempt-1).
			Msg("Completion check budget exhausted")
		return nil, pipeerrors.Newf(pipeerrors.KindExhausted, a.name,
			"%s completion not reached after %d checks (%d/%d)",
			a.kind, attempt-1, progress.Observed, progress.Expected)
	}

	return nil, &RetryAfterError{After: a.checkDelay(attempt)}
}

// checkDelay is the sentinel's own backoff: base doubling per check, capped
func (a *checkCompletionAction) checkDelay(attempt int) time.Duration {
	base := a.deps.Settings.CompletionCheckBase
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	max := a.deps.Settings.CompletionCheckMax
	if max <= 0 {
		max = 5 * time.Second
	}

	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay
}

func (a *checkCompletionAction) maxChecks() int {
	if a.deps.Settings.CompletionCheckRetries > 0 {
		return a.deps.Settings.CompletionCheckRetries
	}
	return 60
}
