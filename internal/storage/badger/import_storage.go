package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// ImportStorage implements the ImportStorage interface for Badger. Events
// are stored one record per broadcast keyed <importId>:<seq>, so replay
// after reconnect is a range query on the import's index.
type ImportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewImportStorage creates a new ImportStorage instance
func NewImportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ImportStorage {
	return &ImportStorage{
		db:     db,
		logger: logger,
	}
}

// SaveImport upserts the import summary record
func (s *ImportStorage) SaveImport(ctx context.Context, record *models.ImportRecord) error {
	if record.ImportID == "" {
		return fmt.Errorf("import ID is required")
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := s.db.Store().Upsert(record.ImportID, record); err != nil {
		return fmt.Errorf("failed to save import: %w", err)
	}
	return nil
}

// GetImport fetches an import record by ID; nil when absent
func (s *ImportStorage) GetImport(ctx context.Context, importID string) (*models.ImportRecord, error) {
	var record models.ImportRecord
	if err := s.db.Store().Get(importID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	return &record, nil
}

// ListImports returns import summaries newest first
func (s *ImportStorage) ListImports(ctx context.Context, limit, offset int) ([]*models.ImportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var records []models.ImportRecord
	query := badgerhold.Where("ImportID").Ne("").
		SortBy("CreatedAt").Reverse().
		Skip(offset).Limit(limit)
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}

	result := make([]*models.ImportRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// AppendEvent persists one broadcast event under the import
func (s *ImportStorage) AppendEvent(ctx context.Context, event *models.ImportEvent) error {
	if event.ImportID == "" {
		return fmt.Errorf("import ID is required")
	}
	if event.ID == "" {
		event.ID = fmt.Sprintf("%s:%012d", event.ImportID, event.Seq)
	}

	if err := s.db.Store().Upsert(event.ID, event); err != nil {
		return fmt.Errorf("failed to append import event: %w", err)
	}
	return nil
}

// GetEvents returns events with Seq > afterSeq in order
func (s *ImportStorage) GetEvents(ctx context.Context, importID string, afterSeq int64, limit int) ([]*models.ImportEvent, error) {
	if limit <= 0 {
		limit = 500
	}

	var events []models.ImportEvent
	query := badgerhold.Where("ImportID").Eq(importID).
		And("Seq").Gt(afterSeq).
		SortBy("Seq").Limit(limit)
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get import events: %w", err)
	}

	result := make([]*models.ImportEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}
