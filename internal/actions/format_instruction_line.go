package actions

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// FormatInstructionLineAction normalizes one instruction reference: trims
// whitespace and closes the sentence with a period unless it already ends in
// terminal punctuation. A reference that trims to empty is passed through
// empty; save_instruction_line stores it inactive rather than dropping the
// row, so line counts stay aligned with the parse.
type FormatInstructionLineAction struct {
	BaseAction
}

// NewFormatInstructionLineAction creates the format_instruction_line action
func NewFormatInstructionLineAction(deps *Dependencies) Action {
	return &FormatInstructionLineAction{BaseAction: newBase(ActionFormatInstructionLine, deps)}
}

// FormatReference applies the instruction formatting rules to one reference
func FormatReference(reference string) string {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return ""
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', ';', ':':
		return trimmed
	}
	return trimmed + "."
}

func (a *FormatInstructionLineAction) ValidateInput(data json.RawMessage) error {
	var job models.LineJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if err := job.Validate(); err != nil {
		return pipeerrors.InvalidInput(a.name, "%v", err)
	}
	return nil
}

func (a *FormatInstructionLineAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	var job models.LineJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}

	job.Reference = FormatReference(job.Reference)
	return json.Marshal(&job)
}
