package models

import "fmt"

// CompletionKind identifies one of the independently-progressing workers
// that contribute to a note's completion.
type CompletionKind string

const (
	KindNote        CompletionKind = "note"
	KindIngredient  CompletionKind = "ingredient"
	KindInstruction CompletionKind = "instruction"
	KindImage       CompletionKind = "image"
	KindSource      CompletionKind = "source"
)

// RequiredKinds are the kinds a note cannot complete without.
// Image and source are best-effort.
func RequiredKinds() []CompletionKind {
	return []CompletionKind{KindNote, KindIngredient, KindInstruction}
}

// CountedKinds are the kinds tracked by per-line counts set at fan-out
func CountedKinds() []CompletionKind {
	return []CompletionKind{KindIngredient, KindInstruction, KindImage}
}

// LineJobData is the payload of a per-line fan-out job on the ingredient or
// instruction queue. JobID is derived deterministically from
// (noteId, kind, lineIndex) so re-enqueue is idempotent.
type LineJobData struct {
	JobID      string            `json:"job_id"`
	NoteID     string            `json:"note_id" validate:"required"`
	ImportID   string            `json:"import_id,omitempty"`
	Reference  string            `json:"reference"`
	LineIndex  int               `json:"line_index" validate:"gte=0"`
	BlockIndex int               `json:"block_index,omitempty"` // Ingredient lines only
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields every line job needs
func (d *LineJobData) Validate() error {
	if d.NoteID == "" {
		return fmt.Errorf("note ID is required")
	}
	if d.LineIndex < 0 {
		return fmt.Errorf("line index must be >= 0, got %d", d.LineIndex)
	}
	return nil
}

// CompletionCheckJobData is the payload of a completion-check sentinel.
// The sentinel observes tracker progress for its kind and re-enqueues itself
// until expected counts are met or its retry budget runs out.
type CompletionCheckJobData struct {
	JobID        string         `json:"job_id"`
	NoteID       string         `json:"note_id" validate:"required"`
	ImportID     string         `json:"import_id,omitempty"`
	Kind         CompletionKind `json:"kind" validate:"required"`
	CheckAttempt int            `json:"check_attempt"`
}

// Validate checks the sentinel payload
func (d *CompletionCheckJobData) Validate() error {
	if d.NoteID == "" {
		return fmt.Errorf("note ID is required")
	}
	if d.Kind == "" {
		return fmt.Errorf("completion kind is required")
	}
	return nil
}

// ImageJobData is the payload of a per-image job on the image queue
type ImageJobData struct {
	JobID     string `json:"job_id"`
	NoteID    string `json:"note_id"`
	ImportID  string `json:"import_id,omitempty"`
	ImageURL  string `json:"image_url"`
	LineIndex int    `json:"line_index"`
}

// Validate checks the image job payload
func (d *ImageJobData) Validate() error {
	if d.NoteID == "" {
		return fmt.Errorf("note ID is required")
	}
	if d.ImageURL == "" {
		return fmt.Errorf("image URL is required")
	}
	return nil
}

// SourceJobData is the payload of the source-resolution job on the source queue
type SourceJobData struct {
	JobID    string `json:"job_id"`
	NoteID   string `json:"note_id"`
	ImportID string `json:"import_id,omitempty"`
	// Source is the raw evernote metadata source string: a URL or a book title
	Source string `json:"source"`
	// MetadataID is the persisted evernote metadata row to update
	MetadataID string `json:"metadata_id,omitempty"`
}

// CategorizationJobData is the payload of a categorization job
type CategorizationJobData struct {
	JobID    string   `json:"job_id"`
	NoteID   string   `json:"note_id"`
	ImportID string   `json:"import_id,omitempty"`
	Title    string   `json:"title"`
	Markdown string   `json:"markdown,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// PatternJobData is the payload of a pattern-tracking job. Pattern jobs are
// observability for the ingredient grammar and never feed note completion.
type PatternJobData struct {
	JobID      string `json:"job_id"`
	NoteID     string `json:"note_id"`
	LineIndex  int    `json:"line_index"`
	Reference  string `json:"reference"`
	PatternKey string `json:"pattern_key"`
	Matched    bool   `json:"matched"`
}
