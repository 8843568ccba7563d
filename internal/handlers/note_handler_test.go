package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/cache"
	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/models"
)

type fakeNoteStore struct {
	notes         map[string]*models.Note
	metas         map[string]*models.EvernoteMetadataRecord
	statuses      map[string]*models.InstructionCompletionStatus
	getNotesCalls int
}

func newFakeNoteStore() *fakeNoteStore {
	return &fakeNoteStore{
		notes:    make(map[string]*models.Note),
		metas:    make(map[string]*models.EvernoteMetadataRecord),
		statuses: make(map[string]*models.InstructionCompletionStatus),
	}
}

func (s *fakeNoteStore) CreateNoteWithEvernoteMetadata(ctx context.Context, file *models.ParsedFile, importID string) (*models.Note, error) {
	return nil, nil
}
func (s *fakeNoteStore) GetNoteWithEvernoteMetadata(ctx context.Context, noteID string) (*models.Note, *models.EvernoteMetadataRecord, error) {
	return s.notes[noteID], s.metas[noteID], nil
}
func (s *fakeNoteStore) GetNotes(ctx context.Context) ([]*models.Note, error) {
	s.getNotesCalls++
	var all []*models.Note
	for _, note := range s.notes {
		all = append(all, note)
	}
	return all, nil
}
func (s *fakeNoteStore) UpdateInstructionLine(ctx context.Context, noteID string, lineIndex int, reference, status string, isActive bool) (string, error) {
	return "", nil
}
func (s *fakeNoteStore) UpdateIngredientLine(ctx context.Context, noteID string, lineIndex int, quantity, unit, name, status string, isActive bool) (string, error) {
	return "", nil
}
func (s *fakeNoteStore) GetInstructionCompletionStatus(ctx context.Context, noteID string) (*models.InstructionCompletionStatus, error) {
	if status, ok := s.statuses[noteID]; ok {
		return status, nil
	}
	return nil, models.ErrNoteNotFound
}
func (s *fakeNoteStore) FindDuplicates(ctx context.Context, contentHash, title, excludeNoteID string) (*models.DuplicateCheckResult, error) {
	return &models.DuplicateCheckResult{}, nil
}
func (s *fakeNoteStore) UpsertEvernoteMetadataSource(ctx context.Context, metadataID, source string) error {
	return nil
}
func (s *fakeNoteStore) ConnectNoteToSource(ctx context.Context, noteID, sourceID string) error {
	return nil
}
func (s *fakeNoteStore) SetNoteCategories(ctx context.Context, noteID string, categories []string) error {
	return nil
}

// newTestNoteHandler wires the handler over a memory-only cache
func newTestNoteHandler(store *fakeNoteStore) *NoteHandler {
	logger := arbor.NewLogger()
	cacheService := cache.NewService(context.Background(), &common.CacheConfig{}, logger)
	return NewNoteHandler(store, cacheService, logger)
}

func TestListNotes(t *testing.T) {
	store := newFakeNoteStore()
	store.notes["note-1"] = &models.Note{ID: "note-1", Title: "Carbonara"}
	handler := newTestNoteHandler(store)

	rec := httptest.NewRecorder()
	handler.ListNotesHandler(rec, httptest.NewRequest("GET", "/api/notes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Notes []*models.Note `json:"notes"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "Carbonara", resp.Notes[0].Title)
}

func TestListNotes_SecondReadServedFromCache(t *testing.T) {
	store := newFakeNoteStore()
	store.notes["note-1"] = &models.Note{ID: "note-1", Title: "Carbonara"}
	handler := newTestNoteHandler(store)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ListNotesHandler(rec, httptest.NewRequest("GET", "/api/notes", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1, store.getNotesCalls, "repeat list must hit the cache, not storage")
}

func TestGetNote(t *testing.T) {
	store := newFakeNoteStore()
	store.notes["note-1"] = &models.Note{ID: "note-1", Title: "Carbonara"}
	store.metas["note-1"] = &models.EvernoteMetadataRecord{ID: "em-1", NoteID: "note-1", Source: "https://example.com"}
	handler := newTestNoteHandler(store)

	rec := httptest.NewRecorder()
	handler.GetNoteHandler(rec, httptest.NewRequest("GET", "/api/notes/note-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Note *models.Note                   `json:"note"`
		Meta *models.EvernoteMetadataRecord `json:"evernote_metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Carbonara", resp.Note.Title)
	assert.Equal(t, "https://example.com", resp.Meta.Source)
}

func TestGetNote_NotFoundIsNeverCached(t *testing.T) {
	store := newFakeNoteStore()
	handler := newTestNoteHandler(store)

	rec := httptest.NewRecorder()
	handler.GetNoteHandler(rec, httptest.NewRequest("GET", "/api/notes/note-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The note arriving later must be visible immediately
	store.notes["note-1"] = &models.Note{ID: "note-1", Title: "Carbonara"}
	rec = httptest.NewRecorder()
	handler.GetNoteHandler(rec, httptest.NewRequest("GET", "/api/notes/note-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetNote_MissingID(t *testing.T) {
	handler := newTestNoteHandler(newFakeNoteStore())

	rec := httptest.NewRecorder()
	handler.GetNoteHandler(rec, httptest.NewRequest("GET", "/api/notes/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNoteStatus(t *testing.T) {
	store := newFakeNoteStore()
	store.statuses["note-1"] = &models.InstructionCompletionStatus{
		CompletedInstructions: 1,
		TotalInstructions:     2,
		Progress:              0.5,
	}
	handler := newTestNoteHandler(store)

	rec := httptest.NewRecorder()
	handler.GetNoteStatusHandler(rec, httptest.NewRequest("GET", "/api/notes/note-1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.InstructionCompletionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalInstructions)
	assert.Equal(t, 0.5, resp.Progress)
}

func TestGetNoteStatus_NotFound(t *testing.T) {
	handler := newTestNoteHandler(newFakeNoteStore())

	rec := httptest.NewRecorder()
	handler.GetNoteStatusHandler(rec, httptest.NewRequest("GET", "/api/notes/note-missing/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
