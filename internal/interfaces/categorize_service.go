package interfaces

import "context"

// CategorizeService assigns recipe categories to a saved note. When no API
// key is configured the service reports disabled and the pipeline treats
// categorization as immediately ready.
type CategorizeService interface {
	// Categorize returns category labels for the note content
	Categorize(ctx context.Context, title, markdown string, tags []string) ([]string, error)

	// Enabled reports whether a provider is configured
	Enabled() bool
}
