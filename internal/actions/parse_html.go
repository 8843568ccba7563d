package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// ParseHTMLAction extracts the recipe structure (title, ingredient and
// instruction lines, images, evernote metadata) from the cleaned HTML.
type ParseHTMLAction struct {
	BaseAction
}

// NewParseHTMLAction creates the parse_html action
func NewParseHTMLAction(deps *Dependencies) Action {
	return &ParseHTMLAction{BaseAction: newBase(ActionParseHTML, deps)}
}

func (a *ParseHTMLAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.Content == "" {
		return pipeerrors.InvalidInput(a.name, "content is required")
	}
	return nil
}

func (a *ParseHTMLAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Parser == nil {
		return nil, pipeerrors.MissingDependency(a.name, "html parser")
	}

	result, err := a.executeServiceAction(ctx, ServiceActionParams{
		ImportID:     payload.ImportID,
		ContextName:  models.ContextParseHTMLStart,
		StartMessage: "Parsing HTML content",
		// Completion is emitted below so the title metadata and line
		// counters always follow it in order
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			file, err := a.deps.Parser.Parse(ctx, payload.Content)
			if err != nil {
				return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "failed to parse HTML: %v", err)
			}
			if file.Markdown == "" {
				file.Markdown = payload.Markdown
			}

			next := *payload
			next.File = file
			return &next, nil
		},
		AdditionalBroadcasting: func(ctx context.Context, result interface{}) error {
			file := result.(*models.NotePipelineData).File

			complete := models.NewStatusEvent(payload.ImportID, models.StatusCompleted,
				models.ContextParseHTMLComplete, fmt.Sprintf("Parsed %q", file.Title))
			complete.Metadata = map[string]interface{}{"noteTitle": file.Title}
			if _, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, complete); err != nil {
				return err
			}

			ingredients := models.NewStatusEvent(payload.ImportID, models.StatusPending,
				models.ContextParseHTMLIngredients,
				fmt.Sprintf("0/%d ingredients", len(file.Ingredients)))
			ingredients.IndentLevel = 1
			ingredients.WithCounts(0, len(file.Ingredients))
			if _, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, ingredients); err != nil {
				return err
			}

			instructions := models.NewStatusEvent(payload.ImportID, models.StatusPending,
				models.ContextParseHTMLInstructions,
				fmt.Sprintf("0/%d instructions", len(file.Instructions)))
			instructions.IndentLevel = 1
			instructions.WithCounts(0, len(file.Instructions))
			_, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, instructions)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	return result.(*models.NotePipelineData).ToJSON()
}
