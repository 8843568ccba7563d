package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// scheduleLinesAction is the shared fan-out for per-line parse jobs. The
// ingredient and instruction schedulers differ only in kind, target queue,
// entry action, and how lines are read off the parsed file.
type scheduleLinesAction struct {
	BaseAction
	kind        models.CompletionKind
	queueName   string
	entryAction string
	checkAction string
}

// NewScheduleIngredientLinesAction creates the schedule_ingredient_lines action
func NewScheduleIngredientLinesAction(deps *Dependencies) Action {
	return &scheduleLinesAction{
		BaseAction:  newBase(ActionScheduleIngredients, deps),
		kind:        models.KindIngredient,
		queueName:   common.QueueIngredient,
		entryAction: ActionParseIngredientLine,
		checkAction: ActionCheckIngredients,
	}
}

// NewScheduleInstructionLinesAction creates the schedule_instruction_lines action
func NewScheduleInstructionLinesAction(deps *Dependencies) Action {
	return &scheduleLinesAction{
		BaseAction:  newBase(ActionScheduleInstructions, deps),
		kind:        models.KindInstruction,
		queueName:   common.QueueInstruction,
		entryAction: ActionFormatInstructionLine,
		checkAction: ActionCheckInstructions,
	}
}

func (a *scheduleLinesAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *scheduleLinesAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.NoteID == "" {
		return nil, pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	if a.deps.Queues == nil {
		return nil, pipeerrors.MissingDependency(a.name, "queue service")
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	lines := a.linesFor(payload)
	if len(lines) == 0 {
		// Nothing to fan out: pin the expected count at zero so the kind
		// completes immediately and the note can still go terminal
		a.logger().Info().
			Str("note_id", payload.NoteID).
			Str("kind", string(a.kind)).
			Msg("No lines to schedule")
		if err := a.deps.Tracker.SetExpectedCounts(payload.NoteID, map[models.CompletionKind]int{a.kind: 0}); err != nil {
			return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
		}
		return data, nil
	}

	for _, line := range lines {
		line.ImportID = payload.ImportID
		if err := a.deps.Queues.Add(ctx, a.queueName, a.entryAction, line, nil); err != nil {
			return nil, pipeerrors.Newf(pipeerrors.KindTransientIO, a.name,
				"failed to enqueue %s line %d: %v", a.kind, line.LineIndex, err)
		}
	}

	sentinel := &models.CompletionCheckJobData{
		JobID:    common.CompletionCheckJobID(payload.NoteID, string(a.kind)),
		NoteID:   payload.NoteID,
		ImportID: payload.ImportID,
		Kind:     a.kind,
	}
	if err := a.deps.Queues.Add(ctx, a.queueName, a.checkAction, sentinel, nil); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindTransientIO, a.name,
			"failed to enqueue %s completion check: %v", a.kind, err)
	}

	if err := a.deps.Tracker.SetExpectedCounts(payload.NoteID, map[models.CompletionKind]int{a.kind: len(lines)}); err != nil {
		return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
	}

	progress := models.NewStatusEvent(payload.ImportID, models.StatusPending,
		string(a.kind)+"_processing", fmt.Sprintf("0/%d %ss", len(lines), a.kind))
	progress.NoteID = payload.NoteID
	progress.IndentLevel = 2
	progress.WithCounts(0, len(lines))
	a.broadcast(ctx, progress)

	a.logger().Info().
		Str("note_id", payload.NoteID).
		Str("kind", string(a.kind)).
		Int("count", len(lines)).
		Msg("Line jobs scheduled")
	return data, nil
}

// linesFor projects the parsed file's rows into line job payloads with
// deterministic job IDs
func (a *scheduleLinesAction) linesFor(payload *models.NotePipelineData) []*models.LineJobData {
	if payload.File == nil {
		return nil
	}

	var lines []*models.LineJobData
	switch a.kind {
	case models.KindIngredient:
		for _, ing := range payload.File.Ingredients {
			lines = append(lines, &models.LineJobData{
				JobID:      common.LineJobID(payload.NoteID, string(a.kind), ing.LineIndex),
				NoteID:     payload.NoteID,
				Reference:  ing.Reference,
				LineIndex:  ing.LineIndex,
				BlockIndex: ing.BlockIndex,
			})
		}
	case models.KindInstruction:
		for _, ins := range payload.File.Instructions {
			lines = append(lines, &models.LineJobData{
				JobID:     common.LineJobID(payload.NoteID, string(a.kind), ins.LineIndex),
				NoteID:    payload.NoteID,
				Reference: ins.Reference,
				LineIndex: ins.LineIndex,
			})
		}
	}
	return lines
}
