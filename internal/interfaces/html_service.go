package interfaces

import (
	"context"

	"github.com/ternarybob/skillet/internal/models"
)

// HTMLCleaner strips export chrome (style, script, meta) from raw recipe
// HTML and renders the cleaned body to markdown
type HTMLCleaner interface {
	Clean(ctx context.Context, rawHTML string) (cleaned string, markdown string, err error)
}

// HTMLParser extracts the recipe structure from cleaned HTML
type HTMLParser interface {
	Parse(ctx context.Context, cleanedHTML string) (*models.ParsedFile, error)
}
