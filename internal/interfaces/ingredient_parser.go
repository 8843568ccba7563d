package interfaces

import "context"

// ParsedIngredient is the grammar's split of one ingredient reference
type ParsedIngredient struct {
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Name     string `json:"name"`
	// PatternKey names the grammar shape that matched, e.g. "qty unit name"
	PatternKey string `json:"pattern_key"`
	Matched    bool   `json:"matched"`
}

// IngredientParser splits ingredient references into quantity, unit, and
// name. Results are cached through the action cache; ClearCache drops them
// when a job sets the clear_ingredient_cache option.
type IngredientParser interface {
	ParseLine(ctx context.Context, reference string) (*ParsedIngredient, error)
	ClearCache(ctx context.Context) error
}
