package interfaces

import (
	"context"

	"github.com/ternarybob/skillet/internal/models"
)

// NoteStorage persists notes, their parsed lines, and evernote metadata
type NoteStorage interface {
	// CreateNoteWithEvernoteMetadata persists the parsed file as a note,
	// assigns line IDs, and creates the metadata record when the file
	// carries one. Returns the persisted note.
	CreateNoteWithEvernoteMetadata(ctx context.Context, file *models.ParsedFile, importID string) (*models.Note, error)

	// GetNoteWithEvernoteMetadata returns the note and its metadata record.
	// Both are nil when the note does not exist.
	GetNoteWithEvernoteMetadata(ctx context.Context, noteID string) (*models.Note, *models.EvernoteMetadataRecord, error)

	// GetNotes lists all notes
	GetNotes(ctx context.Context) ([]*models.Note, error)

	// UpdateInstructionLine updates one instruction row and returns its ID
	UpdateInstructionLine(ctx context.Context, noteID string, lineIndex int, reference, status string, isActive bool) (string, error)

	// UpdateIngredientLine stores the parse result for one ingredient row
	// and returns its ID
	UpdateIngredientLine(ctx context.Context, noteID string, lineIndex int, quantity, unit, name, status string, isActive bool) (string, error)

	// GetInstructionCompletionStatus summarizes instruction progress
	GetInstructionCompletionStatus(ctx context.Context, noteID string) (*models.InstructionCompletionStatus, error)

	// FindDuplicates reports stored notes matching the content hash or title
	FindDuplicates(ctx context.Context, contentHash, title, excludeNoteID string) (*models.DuplicateCheckResult, error)

	// UpsertEvernoteMetadataSource sets the source field on a metadata record
	UpsertEvernoteMetadataSource(ctx context.Context, metadataID, source string) error

	// ConnectNoteToSource links the note to a deduplicated source
	ConnectNoteToSource(ctx context.Context, noteID, sourceID string) error

	// SetNoteCategories stores categorization output on the note
	SetNoteCategories(ctx context.Context, noteID string, categories []string) error
}

// SourceStorage deduplicates recipe origins
type SourceStorage interface {
	// IsValidURL reports whether the value is an absolute web URL
	IsValidURL(value string) bool

	// CreateOrFindSourceWithURL upserts a web source keyed by URL
	CreateOrFindSourceWithURL(ctx context.Context, url string) (*models.Source, error)

	// CreateOrFindSourceWithBook upserts a book source keyed by title
	CreateOrFindSourceWithBook(ctx context.Context, title string) (*models.Source, error)

	// GetSource fetches a source by ID; nil when absent
	GetSource(ctx context.Context, id string) (*models.Source, error)
}

// ImportStorage persists import summaries and their event logs for replay
type ImportStorage interface {
	SaveImport(ctx context.Context, record *models.ImportRecord) error
	GetImport(ctx context.Context, importID string) (*models.ImportRecord, error)
	ListImports(ctx context.Context, limit, offset int) ([]*models.ImportRecord, error)

	// AppendEvent persists one broadcast event under the import
	AppendEvent(ctx context.Context, event *models.ImportEvent) error

	// GetEvents returns events with Seq > afterSeq in order
	GetEvents(ctx context.Context, importID string, afterSeq int64, limit int) ([]*models.ImportEvent, error)
}

// PatternStorage records ingredient-grammar pattern hits
type PatternStorage interface {
	SavePattern(ctx context.Context, record *models.PatternRecord) error
	CountByPattern(ctx context.Context, patternKey string) (int, error)
	ListPatterns(ctx context.Context, matched *bool, limit int) ([]*models.PatternRecord, error)
}

// StorageManager bundles the per-entity storages over one database
type StorageManager interface {
	NoteStorage() NoteStorage
	SourceStorage() SourceStorage
	ImportStorage() ImportStorage
	PatternStorage() PatternStorage
	Close() error
}
