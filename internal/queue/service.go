// Package queue implements the named durable job queues over BadgerDB.
// Each queue keeps message records plus a time-ordered visibility index so
// receives scan only ready jobs:
//
//	queue:<name>:msg:<jobID>              -> envelope JSON
//	queue:<name>:index:<visibleAt>:<jobID> -> empty (zero-padded nanos)
//	queue:<name>:done:<jobID>             -> completion marker (TTL = dedup window)
//
// A job's ID is taken from the payload's job_id field when present, so
// deterministic fan-out IDs make Add idempotent: a job that is queued, in
// flight, or recently completed suppresses re-enqueue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// envelope is the internal structure stored in Badger
type envelope struct {
	Job          models.Job `json:"job"`
	VisibleAt    time.Time  `json:"visible_at"`
	ReceiveCount int        `json:"receive_count"`
}

// payloadID probes a payload for its deterministic job ID
type payloadID struct {
	JobID string `json:"job_id"`
}

// Service implements interfaces.QueueService over one Badger database
type Service struct {
	db     *badger.DB
	logger arbor.ILogger

	pollInterval      time.Duration
	visibilityTimeout time.Duration
	dedupWindow       time.Duration

	// Receives are serialized per queue so concurrent workers never race a
	// Badger transaction on the same visibility index
	mu       sync.Mutex
	receive  map[string]*sync.Mutex
	closed   bool
	closedCh chan struct{}
}

// NewService opens the queue service over an existing Badger database
func NewService(db *badger.DB, config *common.QueueConfig, logger arbor.ILogger) (*Service, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}

	return &Service{
		db:                db,
		logger:            logger,
		pollInterval:      common.Duration(config.PollInterval, 100*time.Millisecond),
		visibilityTimeout: common.Duration(config.VisibilityTimeout, 5*time.Minute),
		dedupWindow:       common.Duration(config.DedupWindow, 10*time.Minute),
		receive:           make(map[string]*sync.Mutex),
		closedCh:          make(chan struct{}),
	}, nil
}

// Add enqueues a job whose first action is actionName. Adding a payload
// whose job_id is already queued, in flight, or completed within the dedup
// window is a no-op.
func (s *Service) Add(ctx context.Context, queueName, actionName string, payload interface{}, opts *models.EnqueueOptions) error {
	if queueName == "" {
		return errors.New("queue name is required")
	}
	if actionName == "" {
		return errors.New("action name is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	jobID := extractJobID(data)
	if jobID == "" {
		jobID = uuid.New().String()
	}

	now := time.Now()
	visibleAt := now
	if opts != nil && opts.Delay > 0 {
		visibleAt = now.Add(opts.Delay)
	}

	env := envelope{
		Job: models.Job{
			JobID:         jobID,
			QueueName:     queueName,
			ActionName:    actionName,
			AttemptNumber: 0, // Incremented on delivery
			Payload:       data,
			EnqueuedAt:    now,
		},
		VisibleAt: visibleAt,
	}

	encoded, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue envelope: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		// Dedup: an existing message (queued or in flight) wins
		if _, err := txn.Get(msgKey(queueName, jobID)); err == nil {
			return errDuplicate
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		// Dedup: a completion marker inside the window wins
		if _, err := txn.Get(doneKey(queueName, jobID)); err == nil {
			return errDuplicate
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(msgKey(queueName, jobID), encoded); err != nil {
			return err
		}
		return txn.Set(indexKey(queueName, visibleAt, jobID), []byte{})
	})
	if errors.Is(err, errDuplicate) {
		s.logger.Debug().
			Str("queue", queueName).
			Str("job_id", jobID).
			Msg("Duplicate job suppressed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s on %s: %w", jobID, queueName, err)
	}

	s.logger.Debug().
		Str("queue", queueName).
		Str("job_id", jobID).
		Str("action", actionName).
		Msg("Job enqueued")
	return nil
}

// Pull blocks until a job is visible on the queue or the context ends.
// Redelivered jobs carry an incremented AttemptNumber.
func (s *Service) Pull(ctx context.Context, queueName string) (*models.Job, error) {
	for {
		job, err := s.tryReceive(queueName)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, models.ErrNoJob) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closedCh:
			return nil, errors.New("queue service closed")
		case <-time.After(s.pollInterval):
		}
	}
}

// Ack removes a completed job and records its ID for dedup
func (s *Service) Ack(ctx context.Context, queueName, jobID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		env, err := s.loadEnvelope(txn, queueName, jobID)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil // Already acked
			}
			return err
		}

		if err := txn.Delete(indexKey(queueName, env.VisibleAt, jobID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Delete(msgKey(queueName, jobID)); err != nil {
			return err
		}

		marker := badger.NewEntry(doneKey(queueName, jobID), []byte(time.Now().Format(time.RFC3339))).
			WithTTL(s.dedupWindow)
		return txn.SetEntry(marker)
	})
}

// Nack returns a job to the queue. A zero retryAfter makes it immediately
// visible; fatal and cancelled reasons drop the job instead.
func (s *Service) Nack(ctx context.Context, queueName, jobID, reason string, retryAfter time.Duration) error {
	drop := reason == interfaces.NackReasonFatal || reason == interfaces.NackReasonCancelled

	return s.db.Update(func(txn *badger.Txn) error {
		env, err := s.loadEnvelope(txn, queueName, jobID)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		if err := txn.Delete(indexKey(queueName, env.VisibleAt, jobID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}

		if drop {
			s.logger.Debug().
				Str("queue", queueName).
				Str("job_id", jobID).
				Str("reason", reason).
				Msg("Job dropped")
			return txn.Delete(msgKey(queueName, jobID))
		}

		env.VisibleAt = time.Now().Add(retryAfter)
		encoded, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey(queueName, jobID), encoded); err != nil {
			return err
		}
		return txn.Set(indexKey(queueName, env.VisibleAt, jobID), []byte{})
	})
}

// Depth returns the number of jobs waiting on the queue
func (s *Service) Depth(ctx context.Context, queueName string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close stops pulls. The Badger database is owned by the caller.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closedCh)
	}
	return nil
}

var errDuplicate = errors.New("duplicate job")

// tryReceive claims the next visible job or returns models.ErrNoJob
func (s *Service) tryReceive(queueName string) (*models.Job, error) {
	lock := s.receiveLock(queueName)
	lock.Lock()
	defer lock.Unlock()

	var claimed models.Job
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			visibleAt, jobID, err := parseIndexKey(queueName, key)
			if err != nil {
				continue
			}
			// The index sorts by visibility time: the first future entry
			// means nothing else is ready either
			if visibleAt.After(now) {
				break
			}

			env, err := s.loadEnvelope(txn, queueName, jobID)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Stale index row; clean it up and keep scanning
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			// Claim: push visibility out and hand the job to the worker
			env.ReceiveCount++
			env.VisibleAt = now.Add(s.visibilityTimeout)
			env.Job.AttemptNumber = env.ReceiveCount

			encoded, err := json.Marshal(env)
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey(queueName, jobID), encoded); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Set(indexKey(queueName, env.VisibleAt, jobID), []byte{}); err != nil {
				return err
			}

			claimed = env.Job
			return nil
		}
		return models.ErrNoJob
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (s *Service) loadEnvelope(txn *badger.Txn, queueName, jobID string) (*envelope, error) {
	item, err := txn.Get(msgKey(queueName, jobID))
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode queue envelope: %w", err)
	}
	return &env, nil
}

func (s *Service) receiveLock(queueName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.receive[queueName]
	if !ok {
		lock = &sync.Mutex{}
		s.receive[queueName] = lock
	}
	return lock
}

func extractJobID(payload []byte) string {
	var probe payloadID
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.JobID
}

func msgKey(queueName, jobID string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", queueName, jobID))
}

func doneKey(queueName, jobID string) []byte {
	return []byte(fmt.Sprintf("queue:%s:done:%s", queueName, jobID))
}

func indexKey(queueName string, visibleAt time.Time, jobID string) []byte {
	// Zero pad to 20 digits so string order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", queueName, visibleAt.UnixNano(), jobID))
}

func parseIndexKey(queueName string, key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", queueName)
	if len(key) < len(prefix)+21 {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	suffix := string(key[len(prefix):])
	var nanos int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &nanos); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, nanos), suffix[21:], nil
}

// Ensure Service implements QueueService interface
var _ interfaces.QueueService = (*Service)(nil)
