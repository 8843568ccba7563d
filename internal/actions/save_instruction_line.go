package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// SaveInstructionLineAction persists one formatted instruction and reports
// the line complete. Empty references are saved inactive so the stored rows
// keep the parse's line indexes.
type SaveInstructionLineAction struct {
	BaseAction
}

// NewSaveInstructionLineAction creates the save_instruction_line action
func NewSaveInstructionLineAction(deps *Dependencies) Action {
	return &SaveInstructionLineAction{BaseAction: newBase(ActionSaveInstructionLine, deps)}
}

func (a *SaveInstructionLineAction) ValidateInput(data json.RawMessage) error {
	var job models.LineJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if err := job.Validate(); err != nil {
		return pipeerrors.InvalidInput(a.name, "%v", err)
	}
	return nil
}

func (a *SaveInstructionLineAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	var job models.LineJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Notes == nil {
		return nil, pipeerrors.MissingDependency(a.name, "note storage")
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	isActive := job.Reference != ""
	_, err := a.deps.Notes.UpdateInstructionLine(ctx, job.NoteID, job.LineIndex, job.Reference, "formatted", isActive)
	if err != nil {
		return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
	}

	if err := a.deps.Tracker.MarkLineCompleted(job.NoteID, models.KindInstruction, job.LineIndex); err != nil {
		return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
	}
	a.broadcastProgress(ctx, &job)

	return data, nil
}

func (a *SaveInstructionLineAction) broadcastProgress(ctx context.Context, job *models.LineJobData) {
	progress, err := a.deps.Tracker.Progress(job.NoteID, models.KindInstruction)
	if err != nil {
		a.logger().Warn().Err(err).Str("note_id", job.NoteID).Msg("Failed to read instruction progress")
		return
	}

	status := models.StatusPending
	if progress.Complete {
		status = models.StatusCompleted
	}
	event := models.NewStatusEvent(job.ImportID, status, models.ContextInstructionProcessing,
		fmt.Sprintf("%d/%d instructions", progress.Observed, progress.Expected))
	event.NoteID = job.NoteID
	event.IndentLevel = 2
	event.WithCounts(progress.Observed, progress.Expected)
	a.broadcast(ctx, event)
}
