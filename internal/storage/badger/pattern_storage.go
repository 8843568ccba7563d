package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// PatternStorage implements the PatternStorage interface for Badger
type PatternStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPatternStorage creates a new PatternStorage instance
func NewPatternStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PatternStorage {
	return &PatternStorage{
		db:     db,
		logger: logger,
	}
}

// SavePattern records one observed grammar pattern hit
func (s *PatternStorage) SavePattern(ctx context.Context, record *models.PatternRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save pattern record: %w", err)
	}
	return nil
}

// CountByPattern returns the number of hits recorded for one pattern key
func (s *PatternStorage) CountByPattern(ctx context.Context, patternKey string) (int, error) {
	count, err := s.db.Store().Count(&models.PatternRecord{}, badgerhold.Where("PatternKey").Eq(patternKey))
	if err != nil {
		return 0, fmt.Errorf("failed to count pattern records: %w", err)
	}
	return int(count), nil
}

// ListPatterns returns recorded hits, optionally filtered by matched state
func (s *PatternStorage) ListPatterns(ctx context.Context, matched *bool, limit int) ([]*models.PatternRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse().Limit(limit)
	if matched != nil {
		query = badgerhold.Where("Matched").Eq(*matched).SortBy("CreatedAt").Reverse().Limit(limit)
	}

	var records []models.PatternRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list pattern records: %w", err)
	}

	result := make([]*models.PatternRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}
