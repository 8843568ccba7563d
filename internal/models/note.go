package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoteNotFound is returned by lookups for note IDs that do not exist
var ErrNoteNotFound = errors.New("note not found")

// Line statuses for parsed ingredient/instruction rows
const (
	LineStatusPending   = "pending"
	LineStatusCompleted = "completed"
	LineStatusFailed    = "failed"
)

// Note is the persisted representation of an ingested recipe
type Note struct {
	ID    string `json:"id"`
	Title string `json:"title" badgerhold:"index"`
	// ContentHash is the SHA-256 of the cleaned markdown; duplicate
	// detection compares hashes before titles
	ContentHash        string `json:"content_hash" badgerhold:"index"`
	Markdown           string `json:"markdown,omitempty"`
	EvernoteMetadataID string `json:"evernote_metadata_id,omitempty"`
	SourceID           string `json:"source_id,omitempty" badgerhold:"index"`
	ImportID           string `json:"import_id,omitempty"`

	ParsedIngredientLines  []ParsedIngredientLine  `json:"parsed_ingredient_lines,omitempty"`
	ParsedInstructionLines []ParsedInstructionLine `json:"parsed_instruction_lines,omitempty"`

	Categories []string `json:"categories,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParsedIngredientLine is one ingredient row attached to a note
type ParsedIngredientLine struct {
	ID         string `json:"id"`
	NoteID     string `json:"note_id"`
	Reference  string `json:"reference"`
	BlockIndex int    `json:"block_index"`
	LineIndex  int    `json:"line_index"`

	// Populated by the ingredient parser
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Name     string `json:"name,omitempty"`

	Status    string    `json:"status"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParsedInstructionLine is one instruction row attached to a note
type ParsedInstructionLine struct {
	ID        string `json:"id"`
	NoteID    string `json:"note_id"`
	Reference string `json:"reference"`
	LineIndex int    `json:"line_index"`

	Status    string    `json:"status"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EvernoteMetadataRecord is the persisted export metadata for a note
type EvernoteMetadataRecord struct {
	ID                string     `json:"id"`
	NoteID            string     `json:"note_id" badgerhold:"index"`
	Source            string     `json:"source,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	OriginalCreatedAt *time.Time `json:"original_created_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewNote constructs a note from a parsed file. The caller assigns line IDs
// after persistence succeeds.
func NewNote(id string, file *ParsedFile) *Note {
	now := time.Now()
	note := &Note{
		ID:        id,
		Title:     file.Title,
		Markdown:  file.Markdown,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, ing := range file.Ingredients {
		note.ParsedIngredientLines = append(note.ParsedIngredientLines, ParsedIngredientLine{
			NoteID:     id,
			Reference:  ing.Reference,
			BlockIndex: ing.BlockIndex,
			LineIndex:  ing.LineIndex,
			Status:     LineStatusPending,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	for _, ins := range file.Instructions {
		note.ParsedInstructionLines = append(note.ParsedInstructionLines, ParsedInstructionLine{
			NoteID:    id,
			Reference: ins.Reference,
			LineIndex: ins.LineIndex,
			Status:    LineStatusPending,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return note
}

// Validate checks the note is persistable
func (n *Note) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("note ID is required")
	}
	if n.Title == "" {
		return fmt.Errorf("note title is required")
	}
	return nil
}

// InstructionCompletionStatus summarizes per-note instruction progress
type InstructionCompletionStatus struct {
	CompletedInstructions int     `json:"completed_instructions"`
	TotalInstructions     int     `json:"total_instructions"`
	Progress              float64 `json:"progress"` // 0.0 - 1.0
	IsComplete            bool    `json:"is_complete"`
}

// DuplicateCheckResult is the outcome of the duplicate-detection query
type DuplicateCheckResult struct {
	IsDuplicate bool     `json:"is_duplicate"`
	Candidates  []string `json:"candidates,omitempty"` // Matching note IDs
}
