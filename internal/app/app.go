// Package app wires the pipeline together: storage, queues, the worker
// runtime, the drop-directory watcher, background maintenance, and the
// HTTP surface.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/actions"
	"github.com/ternarybob/skillet/internal/cache"
	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/handlers"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/metrics"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/queue"
	"github.com/ternarybob/skillet/internal/server"
	"github.com/ternarybob/skillet/internal/services/categorize"
	"github.com/ternarybob/skillet/internal/services/events"
	"github.com/ternarybob/skillet/internal/services/htmlops"
	"github.com/ternarybob/skillet/internal/services/images"
	"github.com/ternarybob/skillet/internal/services/imports"
	"github.com/ternarybob/skillet/internal/services/ingredients"
	"github.com/ternarybob/skillet/internal/status"
	"github.com/ternarybob/skillet/internal/storage/badger"
	"github.com/ternarybob/skillet/internal/tracker"
	"github.com/ternarybob/skillet/internal/watcher"
	"github.com/ternarybob/skillet/internal/workers"
)

// App holds every component of the running service
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	Storage     *badger.Manager
	Cache       *cache.Service
	Broadcaster *status.Broadcaster
	Tracker     *tracker.Tracker
	Queue       *queue.Service
	Events      *events.Service

	Cleaner     *htmlops.Cleaner
	Parser      *htmlops.Parser
	Ingredients *ingredients.Parser
	Images      *images.Service
	Categorizer *categorize.Service

	Factory *actions.Factory
	Deps    *actions.Dependencies
	Workers *workers.Runtime

	Imports   *imports.Service
	Watcher   *watcher.Watcher
	WSHandler *handlers.WebSocketHandler
	Janitor   *cron.Cron

	Registry *prometheus.Registry
	Metrics  *metrics.PipelineMetrics

	Server *server.Server
}

// New builds the application. Components are created in dependency order;
// nothing starts processing until Start.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := a.initStorage(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.initServices(); err != nil {
		cancel()
		a.Storage.Close()
		return nil, err
	}
	if err := a.initPipeline(); err != nil {
		cancel()
		a.closeServices()
		a.Storage.Close()
		return nil, err
	}
	if err := a.initIngest(); err != nil {
		cancel()
		a.closeServices()
		a.Storage.Close()
		return nil, err
	}
	a.initJanitor()
	a.initServer()

	logger.Info().
		Bool("watcher_enabled", cfg.Watcher.Enabled).
		Msg("Application initialized")
	return a, nil
}

// initStorage opens the shared Badger database
func (a *App) initStorage() error {
	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = manager
	return nil
}

// initServices creates the long-lived services the pipeline depends on
func (a *App) initServices() error {
	a.Cache = cache.NewService(a.ctx, &a.Config.Cache, a.Logger)

	a.Broadcaster = status.NewBroadcaster(a.Logger, status.Options{
		SubscriberBuffer: a.Config.Broadcaster.SubscriberBuffer,
		HistoryLimit:     a.Config.Broadcaster.HistoryLimit,
		Persist:          a.persistStatusEvent,
	})

	a.Tracker = tracker.New(a.Logger)
	a.Tracker.OnTerminal(a.onNoteTerminal)

	queueService, err := queue.NewService(a.Storage.DB(), &a.Config.Queue, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue service: %w", err)
	}
	a.Queue = queueService

	a.Events = events.NewService(a.Logger)
	if err := a.Events.Subscribe(interfaces.EventNoteSaved, a.onNoteSaved); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", interfaces.EventNoteSaved, err)
	}

	a.Cleaner = htmlops.NewCleaner(a.Logger)
	a.Parser = htmlops.NewParser(a.Logger)
	a.Ingredients = ingredients.NewParser(a.Cache, a.Logger)

	if a.Config.Images.Bucket != "" {
		imageService, err := images.NewService(a.ctx, images.Config{
			Bucket:          a.Config.Images.Bucket,
			CredentialsFile: a.Config.Images.CredentialsFile,
			UploadTimeout:   common.Duration(a.Config.Images.UploadTimeout, 2*time.Minute),
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize image storage: %w", err)
		}
		a.Images = imageService
	} else {
		a.Logger.Info().Msg("Image upload disabled: no bucket configured")
	}

	categorizer, err := categorize.NewService(&a.Config.Categorize, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize categorize service: %w", err)
	}
	a.Categorizer = categorizer

	return nil
}

// initPipeline assembles the action factory, the dependency bundle, the
// metrics registry, and the worker runtime
func (a *App) initPipeline() error {
	a.Registry = prometheus.NewRegistry()
	a.Metrics = metrics.New(a.Registry)

	a.Factory = actions.NewFactory()
	if err := actions.RegisterDefaults(a.Factory); err != nil {
		return fmt.Errorf("failed to register pipeline actions: %w", err)
	}

	deps := &actions.Dependencies{
		Logger:      a.Logger,
		Broadcaster: a.Broadcaster,
		Queues:      a.Queue,
		Cache:       a.Cache,
		Tracker:     a.Tracker,
		Events:      a.Events,

		Notes:    a.Storage.NoteStorage(),
		Sources:  a.Storage.SourceStorage(),
		Imports:  a.Storage.ImportStorage(),
		Patterns: a.Storage.PatternStorage(),

		Cleaner:     a.Cleaner,
		Parser:      a.Parser,
		Ingredients: a.Ingredients,
		Categorizer: a.Categorizer,

		Settings: actions.Settings{
			CategorizationTimeout:  common.Duration(a.Config.Tracker.CategorizationTimeout, 60*time.Second),
			CompletionCheckBase:    common.Duration(a.Config.Pipeline.CompletionCheckBase, 100*time.Millisecond),
			CompletionCheckMax:     common.Duration(a.Config.Pipeline.CompletionCheckMax, 5*time.Second),
			CompletionCheckRetries: a.Config.Pipeline.CompletionCheckRetries,
		},
	}
	if a.Images != nil {
		deps.Objects = a.Images
	}
	a.Deps = deps

	a.Workers = workers.New(a.Queue, a.Factory, a.Deps, common.AllQueueNames(), workers.Config{
		MaxAttempts: a.Config.Queue.MaxAttempts,
		BackoffBase: common.Duration(a.Config.Queue.RetryBackoffBase, time.Second),
		BackoffMax:  common.Duration(a.Config.Queue.RetryBackoffMax, 60*time.Second),
		Concurrency: a.Config.Queue.Concurrency,
	}, a.Metrics, a.Logger)
	return nil
}

// initIngest creates the import service and, when enabled, the watcher
func (a *App) initIngest() error {
	a.Imports = imports.NewService(a.Queue, a.Storage.ImportStorage(), a.Broadcaster, a.Logger)

	if a.Config.Watcher.Enabled {
		w, err := watcher.New(&a.Config.Watcher, a.Imports, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize watcher: %w", err)
		}
		a.Watcher = w
	}
	return nil
}

// initJanitor schedules background maintenance: completion-record and cache
// sweeps plus queue depth gauge refreshes
func (a *App) initJanitor() {
	if !a.Config.Janitor.Enabled {
		return
	}

	a.Janitor = cron.New()
	recordTTL := common.Duration(a.Config.Tracker.RecordTTL, 24*time.Hour)

	sweepSchedule := a.Config.Janitor.SweepSchedule
	if _, err := a.Janitor.AddFunc(sweepSchedule, func() {
		swept := a.Tracker.Sweep(recordTTL)
		expired := a.Cache.Sweep()
		if swept > 0 || expired > 0 {
			a.Logger.Debug().
				Int("tracker_records", swept).
				Int("cache_entries", expired).
				Msg("Janitor sweep finished")
		}
	}); err != nil {
		a.Logger.Warn().Err(err).Str("schedule", sweepSchedule).Msg("Invalid sweep schedule, sweeps disabled")
	}

	metricsSchedule := a.Config.Janitor.MetricsSchedule
	if _, err := a.Janitor.AddFunc(metricsSchedule, a.refreshGauges); err != nil {
		a.Logger.Warn().Err(err).Str("schedule", metricsSchedule).Msg("Invalid metrics schedule, gauge refresh disabled")
	}
}

// initServer builds the HTTP handlers and the server
func (a *App) initServer() {
	a.WSHandler = handlers.NewWebSocketHandler(a.Broadcaster, &a.Config.WebSocket, a.Logger)
	handlerSet := server.Handlers{
		API:     handlers.NewAPIHandler(a.Logger),
		Imports: handlers.NewImportHandler(a.Imports, a.Storage.ImportStorage(), a.Logger),
		Notes:   handlers.NewNoteHandler(a.Storage.NoteStorage(), a.Cache, a.Logger),
		WS:      a.WSHandler,
	}
	a.Server = server.New(&a.Config.Server, handlerSet, a.Registry, a.Logger)
}

// Start launches the workers, the watcher, the janitor, and the WebSocket
// forwarder. The HTTP server is started by the caller.
func (a *App) Start() error {
	a.WSHandler.Start()

	if err := a.Workers.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start worker runtime: %w", err)
	}

	if a.Watcher != nil {
		if err := a.Watcher.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	if a.Janitor != nil {
		a.Janitor.Start()
	}

	a.Logger.Info().Msg("Application started")
	return nil
}

// refreshGauges samples queue depths and the tracker record count
func (a *App) refreshGauges() {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	for _, queueName := range common.AllQueueNames() {
		depth, err := a.Queue.Depth(ctx, queueName)
		if err != nil {
			a.Logger.Warn().Err(err).Str("queue", queueName).Msg("Failed to sample queue depth")
			continue
		}
		a.Metrics.QueueDepth.WithLabelValues(queueName).Set(float64(depth))
	}
	a.Metrics.TrackedNotes.Set(float64(a.Tracker.ActiveCount()))
}

// persistStatusEvent appends every broadcast event to the import's durable
// log. Terminal failure events also close out the import record.
func (a *App) persistStatusEvent(ctx context.Context, record *models.ImportEvent) error {
	if err := a.Storage.ImportStorage().AppendEvent(ctx, record); err != nil {
		return err
	}

	switch record.Event.Status {
	case models.StatusFailed:
		a.closeImport(ctx, record.ImportID, "", models.ImportStateFailed, record.Event.Message)
	case models.StatusCancelled:
		a.closeImport(ctx, record.ImportID, "", models.ImportStateCancelled, "")
	}
	return nil
}

// onNoteSaved links the saved note back to its import record and moves the
// import into the processing state
func (a *App) onNoteSaved(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]string)
	if !ok {
		return fmt.Errorf("unexpected %s payload type %T", event.Type, event.Payload)
	}
	noteID := payload["note_id"]
	importID := payload["import_id"]
	if noteID == "" || importID == "" {
		return nil
	}

	record, err := a.Storage.ImportStorage().GetImport(ctx, importID)
	if err != nil {
		return err
	}
	if record == nil || record.IsTerminal() {
		return nil
	}

	record.NoteID = noteID
	record.State = models.ImportStateProcessing
	if note, _, err := a.Storage.NoteStorage().GetNoteWithEvernoteMetadata(ctx, noteID); err == nil && note != nil {
		record.IngredientCount = len(note.ParsedIngredientLines)
		record.InstructionCount = len(note.ParsedInstructionLines)
	}
	return a.Storage.ImportStorage().SaveImport(ctx, record)
}

// onNoteTerminal fires once per note when the tracker flips it terminal.
// Marks the import completed unless a failure already closed it.
func (a *App) onNoteTerminal(noteID, importID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.closeImport(ctx, importID, noteID, models.ImportStateCompleted, "")

	if err := a.Events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventNoteTerminal,
		Payload: map[string]string{
			"note_id":   noteID,
			"import_id": importID,
		},
	}); err != nil {
		a.Logger.Warn().Err(err).Str("note_id", noteID).Msg("Failed to publish terminal event")
	}
}

// closeImport moves an import into a terminal state. First terminal state
// wins; later transitions are ignored.
func (a *App) closeImport(ctx context.Context, importID, noteID, state, errorMessage string) {
	record, err := a.Storage.ImportStorage().GetImport(ctx, importID)
	if err != nil {
		a.Logger.Warn().Err(err).Str("import_id", importID).Msg("Failed to load import for close-out")
		return
	}
	if record == nil || record.IsTerminal() {
		return
	}

	record.State = state
	record.Error = errorMessage
	if noteID != "" {
		record.NoteID = noteID
	}
	record.EventCount = len(a.Broadcaster.History(importID))
	now := time.Now()
	record.CompletedAt = &now

	if err := a.Storage.ImportStorage().SaveImport(ctx, record); err != nil {
		a.Logger.Warn().Err(err).Str("import_id", importID).Msg("Failed to close out import")
		return
	}
	a.Logger.Info().
		Str("import_id", importID).
		Str("state", state).
		Msg("Import closed out")
}

// closeServices stops the services created by initServices, in reverse order
func (a *App) closeServices() {
	if a.Images != nil {
		if err := a.Images.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close image storage client")
		}
	}
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue service")
		}
	}
	if a.Broadcaster != nil {
		if err := a.Broadcaster.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close broadcaster")
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close cache service")
		}
	}
}

// Close shuts the application down in reverse dependency order. Safe to
// call after a partial startup.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.Janitor != nil {
		janitorCtx := a.Janitor.Stop()
		<-janitorCtx.Done()
	}
	if a.Watcher != nil {
		if err := a.Watcher.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop watcher")
		}
	}
	if a.Workers != nil {
		a.Workers.Stop()
	}
	if a.WSHandler != nil {
		a.WSHandler.Stop()
	}

	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	a.closeServices()

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
