package actions

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// CleanHTMLAction strips export chrome from the raw recipe HTML and renders
// the cleaned body to markdown for downstream hashing and storage.
type CleanHTMLAction struct {
	BaseAction
}

// NewCleanHTMLAction creates the clean_html action
func NewCleanHTMLAction(deps *Dependencies) Action {
	return &CleanHTMLAction{BaseAction: newBase(ActionCleanHTML, deps)}
}

func (a *CleanHTMLAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if err := inputValidator.Struct(payload); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "invalid payload: %v", err)
	}
	return nil
}

func (a *CleanHTMLAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Cleaner == nil {
		return nil, pipeerrors.MissingDependency(a.name, "html cleaner")
	}

	result, err := a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:          payload.ImportID,
		ContextName:       models.ContextCleanHTML,
		StartMessage:      "Cleaning HTML content",
		CompletionMessage: "HTML content cleaned",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			cleaned, markdown, err := a.deps.Cleaner.Clean(ctx, payload.Content)
			if err != nil {
				return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "failed to clean HTML: %v", err)
			}

			next := *payload
			next.Content = cleaned
			next.Markdown = markdown
			return &next, nil
		},
	})
	if err != nil {
		return nil, err
	}

	return result.(*models.NotePipelineData).ToJSON()
}
