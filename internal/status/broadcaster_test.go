package status

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/models"
)

func newTestBroadcaster() *Broadcaster {
	return NewBroadcaster(arbor.NewLogger(), Options{SubscriberBuffer: 64, HistoryLimit: 100})
}

func TestBroadcast_PerImportOrder(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()
	ctx := context.Background()

	ch, cancel := b.Subscribe("imp-1")
	defer cancel()

	const n = 20
	for i := 0; i < n; i++ {
		_, err := b.AddStatusEventAndBroadcast(ctx,
			models.NewStatusEvent("imp-1", models.StatusProcessing, "clean_html", fmt.Sprintf("event %d", i)))
		require.NoError(t, err)
	}

	for i := 0; i < n; i++ {
		select {
		case event := <-ch:
			assert.Equal(t, int64(i+1), event.Seq, "events must arrive in submission order")
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBroadcast_ConcurrentImportsKeepOwnOrder(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()
	ctx := context.Background()

	const imports = 4
	const perImport = 25

	var wg sync.WaitGroup
	for i := 0; i < imports; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			importID := fmt.Sprintf("imp-%d", i)
			for j := 0; j < perImport; j++ {
				_, err := b.AddStatusEventAndBroadcast(ctx,
					models.NewStatusEvent(importID, models.StatusProcessing, "parse_html_start", fmt.Sprintf("step %d", j)))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < imports; i++ {
		history := b.History(fmt.Sprintf("imp-%d", i))
		require.Len(t, history, perImport)
		for j, event := range history {
			assert.Equal(t, int64(j+1), event.Seq)
		}
	}
}

func TestBroadcast_MissingImportIDLoggedOnly(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()

	ch, cancel := b.SubscribeAll()
	defer cancel()

	event, err := b.AddStatusEventAndBroadcast(context.Background(),
		models.NewStatusEvent("", models.StatusProcessing, "clean_html", "no import"))
	require.NoError(t, err)
	assert.Zero(t, event.Seq)

	select {
	case got := <-ch:
		t.Fatalf("expected no fan-out for events without import ID, got %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcast_SlowSubscriberNeverBlocksAppend(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger(), Options{SubscriberBuffer: 1, HistoryLimit: 100})
	defer b.Close()
	ctx := context.Background()

	// Subscriber that never reads
	_, cancel := b.Subscribe("imp-slow")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			_, err := b.AddStatusEventAndBroadcast(ctx,
				models.NewStatusEvent("imp-slow", models.StatusProcessing, "clean_html", "event"))
			assert.NoError(t, err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("append blocked on a slow subscriber")
	}

	// The full history survives even though the subscriber dropped events
	assert.Len(t, b.History("imp-slow"), 50)
}

func TestBroadcast_SubscribeAllSeesEveryImport(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()
	ctx := context.Background()

	ch, cancel := b.SubscribeAll()
	defer cancel()

	for _, importID := range []string{"imp-a", "imp-b"} {
		_, err := b.AddStatusEventAndBroadcast(ctx,
			models.NewStatusEvent(importID, models.StatusCompleted, "save_note", "done"))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-ch:
			seen[event.ImportID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for firehose events")
		}
	}
	assert.True(t, seen["imp-a"] && seen["imp-b"])
}

func TestBroadcast_SubscribeAllOrderedPerImport(t *testing.T) {
	const n = 200
	b := NewBroadcaster(arbor.NewLogger(), Options{SubscriberBuffer: 2 * n, HistoryLimit: 2 * n})
	defer b.Close()
	ctx := context.Background()

	ch, cancel := b.SubscribeAll()
	defer cancel()

	// Two writers appending to the same import race the firehose delivery
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n/2; i++ {
				_, err := b.AddStatusEventAndBroadcast(ctx,
					models.NewStatusEvent("imp-race", models.StatusProcessing, "ingredient_processing", "step"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		select {
		case event := <-ch:
			assert.Equal(t, int64(i+1), event.Seq, "firehose must observe one import's events in Seq order")
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for firehose event %d", i)
		}
	}
}

func TestBroadcast_PersistSinkReceivesEvents(t *testing.T) {
	var mu sync.Mutex
	var persisted []*models.ImportEvent

	b := NewBroadcaster(arbor.NewLogger(), Options{
		Persist: func(ctx context.Context, event *models.ImportEvent) error {
			mu.Lock()
			persisted = append(persisted, event)
			mu.Unlock()
			return nil
		},
	})
	defer b.Close()

	_, err := b.AddStatusEventAndBroadcast(context.Background(),
		models.NewStatusEvent("imp-1", models.StatusCompleted, "save_note", "saved"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, persisted, 1)
	assert.Equal(t, "imp-1:1", persisted[0].ID)
	assert.Equal(t, int64(1), persisted[0].Seq)
}

func TestBroadcast_RejectsInvalidEvent(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()

	event := models.NewStatusEvent("imp-1", "BOGUS", "clean_html", "bad")
	_, err := b.AddStatusEventAndBroadcast(context.Background(), event)
	assert.Error(t, err)
}
