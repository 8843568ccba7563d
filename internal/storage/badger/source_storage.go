package badger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// SourceStorage implements the SourceStorage interface for Badger. Upserts
// serialize on a mutex so concurrent per-note source jobs cannot race two
// rows for the same key into existence.
type SourceStorage struct {
	db     *BadgerDB
	mu     sync.Mutex
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

// IsValidURL reports whether the value is an absolute web URL
func (s *SourceStorage) IsValidURL(value string) bool {
	return common.IsValidURL(value)
}

// CreateOrFindSourceWithURL upserts a web source keyed by URL
func (s *SourceStorage) CreateOrFindSourceWithURL(ctx context.Context, url string) (*models.Source, error) {
	url = strings.TrimSpace(url)
	if !common.IsValidURL(url) {
		return nil, fmt.Errorf("invalid source URL: %q", url)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.findOne(badgerhold.Where("URL").Eq(url))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	source := &models.Source{
		ID:        common.NewSourceID(),
		Type:      models.SourceTypeURL,
		Name:      common.SiteNameFromURL(url),
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.insert(source)
}

// CreateOrFindSourceWithBook upserts a book source keyed by title
func (s *SourceStorage) CreateOrFindSourceWithBook(ctx context.Context, title string) (*models.Source, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("book title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.findOne(badgerhold.Where("BookTitle").Eq(title))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	source := &models.Source{
		ID:        common.NewSourceID(),
		Type:      models.SourceTypeBook,
		Name:      title,
		BookTitle: title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.insert(source)
}

// GetSource fetches a source by ID; nil when absent
func (s *SourceStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

func (s *SourceStorage) findOne(query *badgerhold.Query) (*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return &sources[0], nil
}

func (s *SourceStorage) insert(source *models.Source) (*models.Source, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return nil, fmt.Errorf("failed to save source: %w", err)
	}
	s.logger.Debug().
		Str("source_id", source.ID).
		Str("type", source.Type).
		Str("name", source.Name).
		Msg("Source created")
	return source, nil
}
