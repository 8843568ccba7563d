package badger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// NoteStorage implements the NoteStorage interface for Badger. Parsed lines
// are embedded in the note record, so line updates are read-modify-write on
// the owning note.
type NoteStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNoteStorage creates a new NoteStorage instance
func NewNoteStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NoteStorage {
	return &NoteStorage{
		db:     db,
		logger: logger,
	}
}

// CreateNoteWithEvernoteMetadata persists the parsed file as a note, assigns
// line IDs, and creates the metadata record when the export carried one.
func (s *NoteStorage) CreateNoteWithEvernoteMetadata(ctx context.Context, file *models.ParsedFile, importID string) (*models.Note, error) {
	if file == nil {
		return nil, fmt.Errorf("parsed file is required")
	}

	note := models.NewNote(common.NewNoteID(), file)
	note.ImportID = importID
	note.ContentHash = hashMarkdown(file.Markdown)
	for i := range note.ParsedIngredientLines {
		note.ParsedIngredientLines[i].ID = uuid.New().String()
	}
	for i := range note.ParsedInstructionLines {
		note.ParsedInstructionLines[i].ID = uuid.New().String()
	}

	if err := note.Validate(); err != nil {
		return nil, err
	}

	meta := newMetadataRecord(note.ID, file.EvernoteMetadata)
	if meta != nil {
		note.EvernoteMetadataID = meta.ID
	}

	if err := s.db.Store().Upsert(note.ID, note); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	if meta != nil {
		if err := s.db.Store().Upsert(meta.ID, meta); err != nil {
			return nil, fmt.Errorf("failed to save evernote metadata: %w", err)
		}
	}

	s.logger.Debug().
		Str("note_id", note.ID).
		Str("import_id", importID).
		Int("ingredients", len(note.ParsedIngredientLines)).
		Int("instructions", len(note.ParsedInstructionLines)).
		Msg("Note created")
	return note, nil
}

// newMetadataRecord returns nil when the export carried no metadata at all
func newMetadataRecord(noteID string, meta models.EvernoteMetadata) *models.EvernoteMetadataRecord {
	if meta.Source == "" && len(meta.Tags) == 0 && meta.OriginalCreatedAt == nil {
		return nil
	}
	now := time.Now()
	return &models.EvernoteMetadataRecord{
		ID:                "em_" + uuid.New().String(),
		NoteID:            noteID,
		Source:            meta.Source,
		Tags:              meta.Tags,
		OriginalCreatedAt: meta.OriginalCreatedAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// GetNoteWithEvernoteMetadata returns the note and its metadata record.
// Both are nil when the note does not exist.
func (s *NoteStorage) GetNoteWithEvernoteMetadata(ctx context.Context, noteID string) (*models.Note, *models.EvernoteMetadataRecord, error) {
	note, err := s.getNote(noteID)
	if err != nil {
		return nil, nil, err
	}
	if note == nil || note.EvernoteMetadataID == "" {
		return note, nil, nil
	}

	var meta models.EvernoteMetadataRecord
	if err := s.db.Store().Get(note.EvernoteMetadataID, &meta); err != nil {
		if err == badgerhold.ErrNotFound {
			return note, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to get evernote metadata: %w", err)
	}
	return note, &meta, nil
}

// GetNotes lists all notes, newest first
func (s *NoteStorage) GetNotes(ctx context.Context) ([]*models.Note, error) {
	var notes []models.Note
	if err := s.db.Store().Find(&notes, badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	result := make([]*models.Note, len(notes))
	for i := range notes {
		result[i] = &notes[i]
	}
	return result, nil
}

// UpdateInstructionLine updates one instruction row and returns its ID
func (s *NoteStorage) UpdateInstructionLine(ctx context.Context, noteID string, lineIndex int, reference, status string, isActive bool) (string, error) {
	note, err := s.requireNote(noteID)
	if err != nil {
		return "", err
	}

	for i := range note.ParsedInstructionLines {
		line := &note.ParsedInstructionLines[i]
		if line.LineIndex != lineIndex {
			continue
		}
		line.Reference = reference
		line.Status = status
		line.IsActive = isActive
		line.UpdatedAt = time.Now()
		note.UpdatedAt = line.UpdatedAt
		if err := s.db.Store().Upsert(note.ID, note); err != nil {
			return "", fmt.Errorf("failed to update instruction line: %w", err)
		}
		return line.ID, nil
	}
	return "", fmt.Errorf("instruction line %d not found on note %s", lineIndex, noteID)
}

// UpdateIngredientLine stores the parse result for one ingredient row and
// returns its ID
func (s *NoteStorage) UpdateIngredientLine(ctx context.Context, noteID string, lineIndex int, quantity, unit, name, status string, isActive bool) (string, error) {
	note, err := s.requireNote(noteID)
	if err != nil {
		return "", err
	}

	for i := range note.ParsedIngredientLines {
		line := &note.ParsedIngredientLines[i]
		if line.LineIndex != lineIndex {
			continue
		}
		line.Quantity = quantity
		line.Unit = unit
		line.Name = name
		line.Status = status
		line.IsActive = isActive
		line.UpdatedAt = time.Now()
		note.UpdatedAt = line.UpdatedAt
		if err := s.db.Store().Upsert(note.ID, note); err != nil {
			return "", fmt.Errorf("failed to update ingredient line: %w", err)
		}
		return line.ID, nil
	}
	return "", fmt.Errorf("ingredient line %d not found on note %s", lineIndex, noteID)
}

// GetInstructionCompletionStatus summarizes instruction progress
func (s *NoteStorage) GetInstructionCompletionStatus(ctx context.Context, noteID string) (*models.InstructionCompletionStatus, error) {
	note, err := s.requireNote(noteID)
	if err != nil {
		return nil, err
	}

	status := &models.InstructionCompletionStatus{
		TotalInstructions: len(note.ParsedInstructionLines),
	}
	for _, line := range note.ParsedInstructionLines {
		if line.Status == models.LineStatusCompleted {
			status.CompletedInstructions++
		}
	}
	if status.TotalInstructions > 0 {
		status.Progress = float64(status.CompletedInstructions) / float64(status.TotalInstructions)
	}
	status.IsComplete = status.CompletedInstructions == status.TotalInstructions
	return status, nil
}

// FindDuplicates reports stored notes matching the content hash, falling
// back to exact title match. The note being checked excludes itself.
func (s *NoteStorage) FindDuplicates(ctx context.Context, contentHash, title, excludeNoteID string) (*models.DuplicateCheckResult, error) {
	var matches []models.Note
	if contentHash != "" {
		if err := s.db.Store().Find(&matches, badgerhold.Where("ContentHash").Eq(contentHash)); err != nil {
			return nil, fmt.Errorf("failed to query notes by hash: %w", err)
		}
	}
	if len(filterNoteIDs(matches, excludeNoteID)) == 0 && title != "" {
		matches = nil
		if err := s.db.Store().Find(&matches, badgerhold.Where("Title").Eq(title)); err != nil {
			return nil, fmt.Errorf("failed to query notes by title: %w", err)
		}
	}

	candidates := filterNoteIDs(matches, excludeNoteID)
	return &models.DuplicateCheckResult{
		IsDuplicate: len(candidates) > 0,
		Candidates:  candidates,
	}, nil
}

func filterNoteIDs(notes []models.Note, excludeNoteID string) []string {
	var ids []string
	for _, n := range notes {
		if n.ID == excludeNoteID {
			continue
		}
		ids = append(ids, n.ID)
	}
	return ids
}

// UpsertEvernoteMetadataSource sets the source field on a metadata record
func (s *NoteStorage) UpsertEvernoteMetadataSource(ctx context.Context, metadataID, source string) error {
	var meta models.EvernoteMetadataRecord
	if err := s.db.Store().Get(metadataID, &meta); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("evernote metadata not found: %s", metadataID)
		}
		return fmt.Errorf("failed to get evernote metadata: %w", err)
	}

	meta.Source = source
	meta.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(meta.ID, &meta); err != nil {
		return fmt.Errorf("failed to update evernote metadata: %w", err)
	}
	return nil
}

// ConnectNoteToSource links the note to a deduplicated source
func (s *NoteStorage) ConnectNoteToSource(ctx context.Context, noteID, sourceID string) error {
	note, err := s.requireNote(noteID)
	if err != nil {
		return err
	}

	note.SourceID = sourceID
	note.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(note.ID, note); err != nil {
		return fmt.Errorf("failed to connect note to source: %w", err)
	}
	return nil
}

// SetNoteCategories stores categorization output on the note
func (s *NoteStorage) SetNoteCategories(ctx context.Context, noteID string, categories []string) error {
	note, err := s.requireNote(noteID)
	if err != nil {
		return err
	}

	note.Categories = categories
	note.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(note.ID, note); err != nil {
		return fmt.Errorf("failed to set note categories: %w", err)
	}
	return nil
}

func (s *NoteStorage) getNote(noteID string) (*models.Note, error) {
	var note models.Note
	if err := s.db.Store().Get(noteID, &note); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &note, nil
}

func (s *NoteStorage) requireNote(noteID string) (*models.Note, error) {
	note, err := s.getNote(noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNoteNotFound, noteID)
	}
	return note, nil
}

func hashMarkdown(markdown string) string {
	sum := sha256.Sum256([]byte(markdown))
	return hex.EncodeToString(sum[:])
}
