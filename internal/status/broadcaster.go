// Package status implements the append-only status event stream. Events
// for one importId are sequenced and observed in submission order; fan-out
// to subscribers never blocks the append.
package status

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// subscriber is one bounded event consumer
type subscriber struct {
	ch      chan models.StatusEvent
	dropped int64
}

// importLog holds one import's ordered event history and subscribers.
// Appends are serialized under mu, which is what preserves per-import order.
type importLog struct {
	mu      sync.Mutex
	nextSeq int64
	events  []models.StatusEvent
	subs    map[*subscriber]struct{}
}

// Broadcaster implements interfaces.StatusBroadcaster
type Broadcaster struct {
	mu      sync.RWMutex
	imports map[string]*importLog
	allSubs map[*subscriber]struct{}
	closed  bool

	logger       arbor.ILogger
	persist      func(context.Context, *models.ImportEvent) error // optional event log sink
	bufferSize   int
	historyLimit int
}

// Options configures buffer bounds and the optional persistence sink
type Options struct {
	// SubscriberBuffer is the per-subscriber channel depth before drops
	SubscriberBuffer int
	// HistoryLimit caps the in-memory events kept per import
	HistoryLimit int
	// Persist, when set, receives every appended event for replay storage.
	// Persistence failures are logged and never fail the broadcast.
	Persist func(context.Context, *models.ImportEvent) error
}

// NewBroadcaster creates the broadcaster
func NewBroadcaster(logger arbor.ILogger, opts Options) *Broadcaster {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 256
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 1000
	}
	return &Broadcaster{
		imports:      make(map[string]*importLog),
		allSubs:      make(map[*subscriber]struct{}),
		logger:       logger,
		persist:      opts.Persist,
		bufferSize:   opts.SubscriberBuffer,
		historyLimit: opts.HistoryLimit,
	}
}

// AddStatusEventAndBroadcast appends the event to its import's log, assigns
// the sequence number, and fans it out. Events without an importId are
// logged only.
func (b *Broadcaster) AddStatusEventAndBroadcast(ctx context.Context, event *models.StatusEvent) (*models.StatusEvent, error) {
	if event == nil {
		return nil, fmt.Errorf("event is required")
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid status event: %w", err)
	}

	if event.ImportID == "" {
		b.logger.Info().
			Str("context", event.Context).
			Str("status", string(event.Status)).
			Str("message", event.Message).
			Msg("Status event without import ID - logged only")
		return event, nil
	}

	log := b.importLogFor(event.ImportID)

	log.mu.Lock()
	log.nextSeq++
	event.Seq = log.nextSeq
	log.events = append(log.events, *event)
	if len(log.events) > b.historyLimit {
		log.events = log.events[len(log.events)-b.historyLimit:]
	}
	// Deliver while holding the log lock so both per-import and firehose
	// subscribers observe one import's events in append order. Sends never
	// block: channels are bounded, overflow drops.
	for sub := range log.subs {
		b.offer(sub, *event)
	}
	b.mu.RLock()
	for sub := range b.allSubs {
		b.offer(sub, *event)
	}
	b.mu.RUnlock()
	log.mu.Unlock()

	if b.persist != nil {
		record := &models.ImportEvent{
			ID:       fmt.Sprintf("%s:%d", event.ImportID, event.Seq),
			ImportID: event.ImportID,
			Seq:      event.Seq,
			Event:    *event,
		}
		if err := b.persist(ctx, record); err != nil {
			b.logger.Warn().Err(err).
				Str("import_id", event.ImportID).
				Int64("seq", event.Seq).
				Msg("Failed to persist status event")
		}
	}

	return event, nil
}

// Subscribe streams events for one importId
func (b *Broadcaster) Subscribe(importID string) (<-chan models.StatusEvent, func()) {
	sub := &subscriber{ch: make(chan models.StatusEvent, b.bufferSize)}
	log := b.importLogFor(importID)

	log.mu.Lock()
	log.subs[sub] = struct{}{}
	log.mu.Unlock()

	cancel := func() {
		log.mu.Lock()
		if _, ok := log.subs[sub]; ok {
			delete(log.subs, sub)
			close(sub.ch)
		}
		log.mu.Unlock()
	}
	return sub.ch, cancel
}

// SubscribeAll streams events for every import (the WS hub's firehose)
func (b *Broadcaster) SubscribeAll() (<-chan models.StatusEvent, func()) {
	sub := &subscriber{ch: make(chan models.StatusEvent, b.bufferSize)}

	b.mu.Lock()
	b.allSubs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.allSubs[sub]; ok {
			delete(b.allSubs, sub)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// History returns the buffered events for an importId in order
func (b *Broadcaster) History(importID string) []models.StatusEvent {
	b.mu.RLock()
	log, ok := b.imports[importID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	history := make([]models.StatusEvent, len(log.events))
	copy(history, log.events)
	return history
}

// Close drops all subscribers
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for sub := range b.allSubs {
		close(sub.ch)
	}
	b.allSubs = make(map[*subscriber]struct{})
	imports := b.imports
	b.imports = make(map[string]*importLog)
	b.mu.Unlock()

	for _, log := range imports {
		log.mu.Lock()
		for sub := range log.subs {
			close(sub.ch)
		}
		log.subs = make(map[*subscriber]struct{})
		log.mu.Unlock()
	}
	return nil
}

// offer delivers without blocking; a full subscriber drops the event
func (b *Broadcaster) offer(sub *subscriber, event models.StatusEvent) {
	select {
	case sub.ch <- event:
	default:
		if atomic.AddInt64(&sub.dropped, 1) == 1 {
			b.logger.Warn().
				Str("import_id", event.ImportID).
				Msg("Slow status subscriber - dropping events")
		}
	}
}

func (b *Broadcaster) importLogFor(importID string) *importLog {
	b.mu.RLock()
	log, ok := b.imports[importID]
	b.mu.RUnlock()
	if ok {
		return log
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if log, ok = b.imports[importID]; ok {
		return log
	}
	log = &importLog{subs: make(map[*subscriber]struct{})}
	b.imports[importID] = log
	return log
}

// Ensure Broadcaster implements StatusBroadcaster interface
var _ interfaces.StatusBroadcaster = (*Broadcaster)(nil)
