package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotePipelineData is the payload that flows through the note pipeline.
// Each action receives the previous action's output and returns an enriched
// copy; NoteID is set exactly once (at save) and never mutated afterwards.
type NotePipelineData struct {
	// Content is the raw HTML as submitted; clean_html replaces it with the
	// cleaned rendition. Required.
	Content string `json:"content" validate:"required"`
	// Markdown is the cleaned content rendered to markdown, set by clean_html
	Markdown string `json:"markdown,omitempty"`
	// ImportID correlates status events for one submission
	ImportID string `json:"import_id,omitempty"`
	// NoteID is assigned by save_note
	NoteID string `json:"note_id,omitempty"`
	// Source is the filename or URL the HTML came from
	Source string `json:"source,omitempty"`

	Options PipelineOptions `json:"options,omitempty"`

	// File is populated by parse_html
	File *ParsedFile `json:"file,omitempty"`
	// Note is populated by save_note with the persisted representation
	Note *Note `json:"note,omitempty"`
}

// PipelineOptions are the recognized per-job pipeline flags
type PipelineOptions struct {
	// SkipFollowupTasks truncates the note pipeline after save_note
	SkipFollowupTasks bool `json:"skip_followup_tasks,omitempty"`
	// ClearIngredientCache invalidates the ingredient parser cache before fan-out
	ClearIngredientCache bool `json:"clear_ingredient_cache,omitempty"`
	// ParseIngredients and ParseInstructions are informational; reserved
	ParseIngredients  bool `json:"parse_ingredients,omitempty"`
	ParseInstructions bool `json:"parse_instructions,omitempty"`
}

// ParsedFile holds the structure extracted from cleaned recipe HTML
type ParsedFile struct {
	Title          string `json:"title"`
	CleanedContent string `json:"cleaned_content"`
	// Markdown is the cleaned content rendered to markdown; its hash feeds
	// duplicate detection
	Markdown         string            `json:"markdown,omitempty"`
	ImageRefs        []ImageRef        `json:"image_refs,omitempty"`
	Ingredients      []IngredientLine  `json:"ingredients,omitempty"`
	Instructions     []InstructionLine `json:"instructions,omitempty"`
	EvernoteMetadata EvernoteMetadata  `json:"evernote_metadata"`
}

// IngredientLine is one ordered ingredient reference from the parsed HTML.
// BlockIndex distinguishes multiple ingredient lists in one recipe.
type IngredientLine struct {
	Reference  string `json:"reference"`
	BlockIndex int    `json:"block_index"`
	LineIndex  int    `json:"line_index"`
}

// InstructionLine is one ordered instruction reference from the parsed HTML
type InstructionLine struct {
	Reference string `json:"reference"`
	LineIndex int    `json:"line_index"`
}

// ImageRef is one image discovered in the recipe HTML
type ImageRef struct {
	URL       string `json:"url"`
	LineIndex int    `json:"line_index"`
}

// EvernoteMetadata carries the export metadata embedded in the HTML head
type EvernoteMetadata struct {
	Source            string     `json:"source,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	OriginalCreatedAt *time.Time `json:"original_created_at,omitempty"`
}

// Validate checks the required fields for entering the note pipeline
func (d *NotePipelineData) Validate() error {
	if d.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// ToJSON serializes the pipeline data for enqueueing
func (d *NotePipelineData) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

// NotePipelineDataFromJSON deserializes a note job payload
func NotePipelineDataFromJSON(data []byte) (*NotePipelineData, error) {
	var d NotePipelineData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note pipeline data: %w", err)
	}
	return &d, nil
}
