package models

import (
	"fmt"
	"time"
)

// SourceType constants
const (
	SourceTypeURL  = "url"
	SourceTypeBook = "book"
)

// Source is a deduplicated recipe origin: a website or a book. Web sources
// are keyed by URL, book sources by title; upserts reuse the existing row.
type Source struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	// Name is the display name: site hostname (www stripped) for URLs,
	// the title itself for books
	Name string `json:"name" badgerhold:"index"`
	// URL is set for web sources only
	URL string `json:"url,omitempty" badgerhold:"index"`
	// BookTitle is set for book sources only
	BookTitle string `json:"book_title,omitempty" badgerhold:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate validates the source
func (s *Source) Validate() error {
	switch s.Type {
	case SourceTypeURL:
		if s.URL == "" {
			return fmt.Errorf("URL is required for url sources")
		}
	case SourceTypeBook:
		if s.BookTitle == "" {
			return fmt.Errorf("book title is required for book sources")
		}
	default:
		return fmt.Errorf("invalid source type: %q", s.Type)
	}
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	return nil
}

// PatternRecord is one observed ingredient-grammar pattern hit, persisted by
// the pattern-tracking worker for grammar tuning
type PatternRecord struct {
	ID         string    `json:"id"`
	NoteID     string    `json:"note_id" badgerhold:"index"`
	LineIndex  int       `json:"line_index"`
	Reference  string    `json:"reference"`
	PatternKey string    `json:"pattern_key" badgerhold:"index"`
	Matched    bool      `json:"matched"`
	CreatedAt  time.Time `json:"created_at"`
}
