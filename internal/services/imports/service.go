// Package imports accepts HTML submissions from the API and the drop
// directory watcher: it assigns the importId, persists the summary record,
// and enqueues the note pipeline job.
package imports

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/actions"
	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// Service coordinates one submission end to end
type Service struct {
	queue       interfaces.QueueService
	imports     interfaces.ImportStorage
	broadcaster interfaces.StatusBroadcaster
	logger      arbor.ILogger
}

// NewService creates the import submission service
func NewService(queue interfaces.QueueService, imports interfaces.ImportStorage, broadcaster interfaces.StatusBroadcaster, logger arbor.ILogger) *Service {
	return &Service{
		queue:       queue,
		imports:     imports,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Submit registers the HTML payload as a new import and enqueues its note
// job. The returned record carries the importId clients subscribe with.
func (s *Service) Submit(ctx context.Context, source, content string, options models.PipelineOptions) (*models.ImportRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is required")
	}

	importID := common.NewImportID()
	record := models.NewImportRecord(importID, source)
	if err := s.imports.SaveImport(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save import record: %w", err)
	}

	event := models.NewStatusEvent(importID, models.StatusAwaitingParsing, models.ContextImportReceived, fmt.Sprintf("Import received: %s", source))
	if _, err := s.broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("import_id", importID).Msg("Failed to broadcast import received event")
	}

	payload := &models.NotePipelineData{
		Content:  content,
		ImportID: importID,
		Source:   source,
		Options:  options,
	}
	if err := s.queue.Add(ctx, common.QueueNote, actions.ActionCleanHTML, payload, nil); err != nil {
		record.State = models.ImportStateFailed
		record.Error = err.Error()
		if saveErr := s.imports.SaveImport(ctx, record); saveErr != nil {
			s.logger.Warn().Err(saveErr).Str("import_id", importID).Msg("Failed to record enqueue failure")
		}
		return nil, fmt.Errorf("failed to enqueue note job: %w", err)
	}

	s.logger.Info().
		Str("import_id", importID).
		Str("source", source).
		Int("content_bytes", len(content)).
		Msg("Import submitted")
	return record, nil
}
