// Package ingredients splits raw ingredient references into quantity, unit,
// and name with a deliberately small grammar. Parse results are cached
// through the shared cache so re-imports of the same recipe never re-parse.
package ingredients

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/cache"
	"github.com/ternarybob/skillet/internal/interfaces"
)

// Grammar pattern keys reported for tuning
const (
	PatternQtyUnitName = "qty unit name"
	PatternQtyName     = "qty name"
	PatternNameOnly    = "name only"
	PatternEmpty       = "empty"
)

// Units the grammar recognizes. Matching is case-insensitive and accepts
// trailing plural s.
var knownUnits = map[string]struct{}{
	"g": {}, "kg": {}, "mg": {},
	"ml": {}, "l": {}, "dl": {},
	"cup": {}, "tbsp": {}, "tsp": {}, "tablespoon": {}, "teaspoon": {},
	"oz": {}, "lb": {}, "pound": {}, "ounce": {},
	"pinch": {}, "dash": {}, "clove": {}, "slice": {}, "can": {}, "bunch": {},
}

// quantityRe matches integers, decimals, simple fractions, and unicode
// vulgar fractions, optionally with a range (e.g. "1-2")
var quantityRe = regexp.MustCompile(`^(\d+[.,]\d+|\d+\s*/\s*\d+|\d+(\s*-\s*\d+)?|[¼½¾⅓⅔⅛])`)

// attachedUnitRe splits "200g" style quantities with the unit glued on
var attachedUnitRe = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)([a-zA-Z]+)$`)

// Parser is the cached ingredient grammar
type Parser struct {
	cache  interfaces.CacheService
	logger arbor.ILogger
}

var _ interfaces.IngredientParser = (*Parser)(nil)

// NewParser creates a parser over the shared cache. A nil cache disables
// caching without changing parse behavior.
func NewParser(cacheService interfaces.CacheService, logger arbor.ILogger) *Parser {
	return &Parser{cache: cacheService, logger: logger}
}

// ParseLine splits one reference, read-through cached by reference hash
func (p *Parser) ParseLine(ctx context.Context, reference string) (*interfaces.ParsedIngredient, error) {
	if p.cache == nil {
		return parse(reference), nil
	}

	raw, err := p.cache.GetOrSet(ctx, cache.IngredientKey(reference), func(ctx context.Context) (interface{}, error) {
		return parse(reference), nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("ingredient cache lookup failed: %w", err)
	}

	var parsed interfaces.ParsedIngredient
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("malformed cached ingredient: %w", err)
	}
	return &parsed, nil
}

// ClearCache drops every cached parse result
func (p *Parser) ClearCache(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	dropped, err := p.cache.InvalidateByPattern(ctx, cache.PrefixIngredient)
	if err != nil {
		return err
	}
	p.logger.Info().Int("dropped", dropped).Msg("Ingredient parse cache cleared")
	return nil
}

// parse is the grammar itself; pure and total
func parse(reference string) *interfaces.ParsedIngredient {
	text := strings.TrimSpace(reference)
	if text == "" {
		return &interfaces.ParsedIngredient{PatternKey: PatternEmpty}
	}

	quantity, rest := splitQuantity(text)
	if quantity == "" {
		return &interfaces.ParsedIngredient{
			Name:       text,
			PatternKey: PatternNameOnly,
			Matched:    false,
		}
	}

	unit, name := splitUnit(rest)
	if unit == "" {
		return &interfaces.ParsedIngredient{
			Quantity:   quantity,
			Name:       name,
			PatternKey: PatternQtyName,
			Matched:    true,
		}
	}
	return &interfaces.ParsedIngredient{
		Quantity:   quantity,
		Unit:       unit,
		Name:       name,
		PatternKey: PatternQtyUnitName,
		Matched:    true,
	}
}

// splitQuantity peels a leading quantity off the text. "200g" style glued
// units are split into quantity and a rejoined unit token.
func splitQuantity(text string) (quantity, rest string) {
	first, remainder, _ := strings.Cut(text, " ")
	if m := attachedUnitRe.FindStringSubmatch(first); m != nil {
		if isUnit(m[2]) {
			return m[1], strings.TrimSpace(m[2] + " " + remainder)
		}
	}

	loc := quantityRe.FindStringIndex(text)
	if loc == nil {
		return "", text
	}
	return strings.TrimSpace(text[:loc[1]]), strings.TrimSpace(text[loc[1]:])
}

func splitUnit(text string) (unit, name string) {
	first, remainder, found := strings.Cut(text, " ")
	if !found {
		return "", text
	}
	if isUnit(first) {
		return first, strings.TrimSpace(remainder)
	}
	return "", text
}

func isUnit(token string) bool {
	token = strings.ToLower(strings.TrimSuffix(token, "."))
	if _, ok := knownUnits[token]; ok {
		return true
	}
	// Accept plural forms
	if _, ok := knownUnits[strings.TrimSuffix(token, "s")]; ok {
		return true
	}
	return false
}
