// Package workers hosts the per-queue worker runtime: pull loops that route
// jobs through their action pipelines with retry, cancellation, and panic
// containment.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/actions"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/metrics"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// Config are the runtime's retry and concurrency tunables
type Config struct {
	// MaxAttempts bounds deliveries per job for retryable failures
	MaxAttempts int
	// BackoffBase is the first retry delay; doubles per attempt
	BackoffBase time.Duration
	// BackoffMax caps the retry delay
	BackoffMax time.Duration
	// Concurrency maps queue name to worker count; unlisted queues get 1
	Concurrency map[string]int
}

// DefaultConfig returns the production retry policy
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  60 * time.Second,
	}
}

// Runtime runs the pull loops for every hosted queue
type Runtime struct {
	queues      interfaces.QueueService
	factory     *actions.Factory
	deps        *actions.Dependencies
	broadcaster interfaces.StatusBroadcaster
	metrics     *metrics.PipelineMetrics
	logger      arbor.ILogger
	config      Config

	queueNames []string
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	started    bool
	mu         sync.Mutex
}

// New creates a runtime over the given queues. Metrics may be nil.
func New(queues interfaces.QueueService, factory *actions.Factory, deps *actions.Dependencies,
	queueNames []string, config Config, m *metrics.PipelineMetrics, logger arbor.ILogger) *Runtime {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = 60 * time.Second
	}
	return &Runtime{
		queues:      queues,
		factory:     factory,
		deps:        deps,
		broadcaster: deps.Broadcaster,
		metrics:     m,
		logger:      logger,
		config:      config,
		queueNames:  queueNames,
	}
}

// Start launches the configured workers per queue
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("worker runtime already started")
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for _, queueName := range r.queueNames {
		workers := r.config.Concurrency[queueName]
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			r.wg.Add(1)
			go r.run(ctx, queueName, fmt.Sprintf("%s-%d", queueName, i))
		}
		r.logger.Info().
			Str("queue", queueName).
			Int("workers", workers).
			Msg("Queue workers started")
	}
	return nil
}

// Stop cancels the pull loops and waits for in-flight jobs to finish
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info().Msg("Worker runtime stopped")
}

// run is one worker's pull loop
func (r *Runtime) run(ctx context.Context, queueName, workerName string) {
	defer r.wg.Done()

	for {
		job, err := r.queues.Pull(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, models.ErrNoJob) {
				r.logger.Error().Err(err).Str("queue", queueName).Msg("Pull failed")
			}
			continue
		}
		r.process(ctx, job, workerName)
	}
}

// process routes one delivery through its pipeline and settles it
func (r *Runtime) process(ctx context.Context, job *models.Job, workerName string) {
	start := time.Now()
	logger := r.logger.WithCorrelationId(job.JobID)

	logger.Info().
		Str("worker", workerName).
		Str("action", job.ActionName).
		Int("attempt", job.AttemptNumber).
		Msg("Processing job")

	err := r.runPipeline(ctx, job, workerName)
	if r.metrics != nil {
		r.metrics.JobDuration.WithLabelValues(job.QueueName).Observe(time.Since(start).Seconds())
	}

	if err == nil {
		if ackErr := r.queues.Ack(ctx, job.QueueName, job.JobID); ackErr != nil {
			logger.Error().Err(ackErr).Str("job_id", job.JobID).Msg("Failed to ack job")
		}
		if r.metrics != nil {
			r.metrics.JobsProcessed.WithLabelValues(job.QueueName, job.ActionName).Inc()
		}
		logger.Info().
			Str("job_id", job.JobID).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("Job completed")
		return
	}

	r.settleFailure(ctx, job, err, logger)
}

// runPipeline executes the job's action chain. The returned error, if any,
// classifies the failure for settleFailure.
func (r *Runtime) runPipeline(ctx context.Context, job *models.Job, workerName string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().
				Str("job_id", job.JobID).
				Str("action", job.ActionName).
				Str("stack", string(debug.Stack())).
				Msg(fmt.Sprintf("Panic in pipeline: %v", p))
			err = pipeerrors.Newf(pipeerrors.KindProgrammingError, job.ActionName, "panic: %v", p)
		}
	}()

	pipeline, err := actions.BuildPipeline(job, r.factory, r.deps)
	if err != nil {
		return err
	}

	actx := models.NewActionContext(job, workerName)
	data := job.Payload
	for _, action := range pipeline {
		// Cooperative cancellation between actions: finish the current
		// action, then stop cleanly
		if ctx.Err() != nil {
			return pipeerrors.New(pipeerrors.KindCancelled, action.Name(), ctx.Err())
		}

		actx.Operation = action.Name()
		if err := action.ValidateInput(data); err != nil {
			return err
		}

		out, err := action.Execute(ctx, data, actx)
		if err != nil {
			if !action.Retryable() && !isRetryAfter(err) && pipeerrors.Retryable(err) {
				// The action opted out of redelivery regardless of the
				// error's own classification
				return pipeerrors.Exhaust(err, action.Name())
			}
			return err
		}
		if out != nil {
			data = out
		}
	}
	return nil
}

// settleFailure nacks or drops the failed job and emits the terminal event
func (r *Runtime) settleFailure(ctx context.Context, job *models.Job, err error, logger arbor.ILogger) {
	var retryAfter *actions.RetryAfterError
	if errors.As(err, &retryAfter) {
		// Self-scheduled redelivery outside the retry budget (completion
		// sentinels); no event, no failure counters
		if nackErr := r.queues.Nack(ctx, job.QueueName, job.JobID, interfaces.NackReasonRetry, retryAfter.After); nackErr != nil {
			logger.Error().Err(nackErr).Str("job_id", job.JobID).Msg("Failed to nack for redelivery")
		}
		return
	}

	kind := pipeerrors.KindOf(err)

	if kind == pipeerrors.KindCancelled {
		logger.Info().Str("job_id", job.JobID).Msg("Job cancelled")
		r.emitTerminal(ctx, job, models.StatusCancelled, "Processing cancelled")
		if nackErr := r.queues.Nack(ctx, job.QueueName, job.JobID, interfaces.NackReasonCancelled, 0); nackErr != nil {
			logger.Error().Err(nackErr).Str("job_id", job.JobID).Msg("Failed to settle cancelled job")
		}
		return
	}

	retryable := pipeerrors.Retryable(err)
	if retryable && job.AttemptNumber < r.config.MaxAttempts {
		delay := r.backoff(job.AttemptNumber)
		logger.Warn().Err(err).
			Str("job_id", job.JobID).
			Int("attempt", job.AttemptNumber).
			Str("retry_after", delay.String()).
			Msg("Job failed, scheduling retry")
		if r.metrics != nil {
			r.metrics.JobsRetried.WithLabelValues(job.QueueName, job.ActionName).Inc()
		}
		if nackErr := r.queues.Nack(ctx, job.QueueName, job.JobID, interfaces.NackReasonRetry, delay); nackErr != nil {
			logger.Error().Err(nackErr).Str("job_id", job.JobID).Msg("Failed to nack for retry")
		}
		return
	}

	if retryable {
		err = pipeerrors.Exhaust(err, job.ActionName)
	}
	logger.Error().Err(err).
		Str("job_id", job.JobID).
		Int("attempt", job.AttemptNumber).
		Msg("Job failed fatally")
	if r.metrics != nil {
		r.metrics.JobsFailed.WithLabelValues(job.QueueName, job.ActionName).Inc()
	}

	r.emitTerminal(ctx, job, models.StatusFailed, fmt.Sprintf("Processing failed: %v", err))
	if nackErr := r.queues.Nack(ctx, job.QueueName, job.JobID, interfaces.NackReasonFatal, 0); nackErr != nil {
		logger.Error().Err(nackErr).Str("job_id", job.JobID).Msg("Failed to drop job")
	}
}

// backoff is base doubling per attempt, capped
func (r *Runtime) backoff(attempt int) time.Duration {
	delay := r.config.BackoffBase
	for i := 1; i < attempt && delay < r.config.BackoffMax; i++ {
		delay *= 2
	}
	if delay > r.config.BackoffMax {
		delay = r.config.BackoffMax
	}
	return delay
}

// jobIdentity is the best-effort probe for correlation IDs in any payload
type jobIdentity struct {
	ImportID string `json:"import_id"`
	NoteID   string `json:"note_id"`
}

// emitTerminal broadcasts the job's FAILED or CANCELLED event when the
// payload carries an importId. Best-effort: a failed broadcast is logged.
func (r *Runtime) emitTerminal(ctx context.Context, job *models.Job, status models.Status, message string) {
	if r.broadcaster == nil {
		return
	}

	var identity jobIdentity
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &identity); err != nil || identity.ImportID == "" {
			return
		}
	}
	if identity.ImportID == "" {
		return
	}

	event := models.NewStatusEvent(identity.ImportID, status, job.ActionName, message)
	event.NoteID = identity.NoteID
	if _, err := r.broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
		r.logger.Warn().Err(err).
			Str("job_id", job.JobID).
			Msg("Failed to broadcast terminal event")
	}
}

func isRetryAfter(err error) bool {
	var retryAfter *actions.RetryAfterError
	return errors.As(err, &retryAfter)
}
