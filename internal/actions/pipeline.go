package actions

import (
	"encoding/json"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// BuildPipeline composes the ordered action sequence for one job. The
// builder is pure: it consults only the job's entry action, its payload
// options, and the factory. The output of action i feeds action i+1.
func BuildPipeline(job *models.Job, factory *Factory, deps *Dependencies) ([]Action, error) {
	names, err := pipelineNames(job.ActionName, job.Payload)
	if err != nil {
		return nil, err
	}

	pipeline := make([]Action, 0, len(names))
	for _, name := range names {
		action, err := factory.Create(name, deps)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, action)
	}
	return pipeline, nil
}

// pipelineNames resolves the canonical chain for an entry action
func pipelineNames(entry string, payload json.RawMessage) ([]string, error) {
	switch entry {
	case ActionCleanHTML:
		return notePipelineNames(payload)

	case ActionFormatInstructionLine:
		// Instruction lines are formatted then saved within one worker run
		return []string{ActionFormatInstructionLine, ActionSaveInstructionLine}, nil

	case ActionParseIngredientLine,
		ActionProcessSource,
		ActionProcessImage,
		ActionTrackPattern,
		ActionCategorizeNote,
		ActionCheckIngredients,
		ActionCheckInstructions:
		return []string{entry}, nil
	}

	return nil, pipeerrors.Newf(pipeerrors.KindProgrammingError, "pipeline",
		"no pipeline defined for entry action %q", entry)
}

// notePipelineNames is the canonical note pipeline. skipFollowupTasks
// truncates the chain after save_note.
func notePipelineNames(payload json.RawMessage) ([]string, error) {
	var data models.NotePipelineData
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, "pipeline",
				"malformed note payload: %v", err)
		}
	}

	if data.Options.SkipFollowupTasks {
		return []string{ActionCleanHTML, ActionParseHTML, ActionSaveNote}, nil
	}
	return []string{
		ActionCleanHTML,
		ActionParseHTML,
		ActionSaveNote,
		ActionScheduleFollowups,
		ActionCheckDuplicates,
		ActionWaitForCategorization,
		ActionMarkNoteCompleted,
	}, nil
}
