package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/skillet/internal/models"
)

func TestSaveAndGetImport(t *testing.T) {
	manager := newTestManager(t)
	imports := manager.ImportStorage()
	ctx := context.Background()

	record := models.NewImportRecord("imp-1", "carbonara.html")
	require.NoError(t, imports.SaveImport(ctx, record))

	got, err := imports.GetImport(ctx, "imp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ImportStateReceived, got.State)
	assert.Equal(t, "carbonara.html", got.Source)

	got.State = models.ImportStateCompleted
	require.NoError(t, imports.SaveImport(ctx, got))

	updated, err := imports.GetImport(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, models.ImportStateCompleted, updated.State)

	missing, err := imports.GetImport(ctx, "imp-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListImports_NewestFirstWithPaging(t *testing.T) {
	manager := newTestManager(t)
	imports := manager.ImportStorage()
	ctx := context.Background()

	for _, id := range []string{"imp-a", "imp-b", "imp-c"} {
		require.NoError(t, imports.SaveImport(ctx, models.NewImportRecord(id, id+".html")))
		time.Sleep(5 * time.Millisecond)
	}

	page, err := imports.ListImports(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "imp-c", page[0].ImportID)
	assert.Equal(t, "imp-b", page[1].ImportID)

	rest, err := imports.ListImports(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "imp-a", rest[0].ImportID)
}

func TestAppendAndReplayEvents(t *testing.T) {
	manager := newTestManager(t)
	imports := manager.ImportStorage()
	ctx := context.Background()

	for seq := int64(1); seq <= 5; seq++ {
		event := &models.ImportEvent{
			ImportID: "imp-1",
			Seq:      seq,
			Event:    models.StatusEvent{ImportID: "imp-1", Message: "step"},
		}
		require.NoError(t, imports.AppendEvent(ctx, event))
	}
	// Another import's events never leak into the replay
	require.NoError(t, imports.AppendEvent(ctx, &models.ImportEvent{ImportID: "imp-2", Seq: 1}))

	all, err := imports.GetEvents(ctx, "imp-1", 0, 100)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, int64(1), all[0].Seq)
	assert.Equal(t, int64(5), all[4].Seq)

	tail, err := imports.GetEvents(ctx, "imp-1", 3, 100)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), tail[0].Seq)

	limited, err := imports.GetEvents(ctx, "imp-1", 0, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSavePatternAndQuery(t *testing.T) {
	manager := newTestManager(t)
	patterns := manager.PatternStorage()
	ctx := context.Background()

	require.NoError(t, patterns.SavePattern(ctx, &models.PatternRecord{
		NoteID: "note-1", LineIndex: 0, Reference: "200g spaghetti", PatternKey: "qty unit name", Matched: true,
	}))
	require.NoError(t, patterns.SavePattern(ctx, &models.PatternRecord{
		NoteID: "note-1", LineIndex: 1, Reference: "salt to taste", PatternKey: "name only", Matched: false,
	}))

	count, err := patterns.CountByPattern(ctx, "qty unit name")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matched := true
	hits, err := patterns.ListPatterns(ctx, &matched, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "200g spaghetti", hits[0].Reference)

	all, err := patterns.ListPatterns(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
