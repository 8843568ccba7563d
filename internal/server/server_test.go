package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/cache"
	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/handlers"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/status"
)

type stubSubmitter struct{}

func (stubSubmitter) Submit(ctx context.Context, source, content string, options models.PipelineOptions) (*models.ImportRecord, error) {
	return models.NewImportRecord("imp-1", source), nil
}

type stubImportStore struct{}

func (stubImportStore) SaveImport(ctx context.Context, record *models.ImportRecord) error { return nil }
func (stubImportStore) GetImport(ctx context.Context, importID string) (*models.ImportRecord, error) {
	return nil, nil
}
func (stubImportStore) ListImports(ctx context.Context, limit, offset int) ([]*models.ImportRecord, error) {
	return nil, nil
}
func (stubImportStore) AppendEvent(ctx context.Context, event *models.ImportEvent) error { return nil }
func (stubImportStore) GetEvents(ctx context.Context, importID string, afterSeq int64, limit int) ([]*models.ImportEvent, error) {
	return nil, nil
}

type stubNoteStore struct{}

func (stubNoteStore) CreateNoteWithEvernoteMetadata(ctx context.Context, file *models.ParsedFile, importID string) (*models.Note, error) {
	return nil, nil
}
func (stubNoteStore) GetNoteWithEvernoteMetadata(ctx context.Context, noteID string) (*models.Note, *models.EvernoteMetadataRecord, error) {
	return nil, nil, nil
}
func (stubNoteStore) GetNotes(ctx context.Context) ([]*models.Note, error) { return nil, nil }
func (stubNoteStore) UpdateInstructionLine(ctx context.Context, noteID string, lineIndex int, reference, status string, isActive bool) (string, error) {
	return "", nil
}
func (stubNoteStore) UpdateIngredientLine(ctx context.Context, noteID string, lineIndex int, quantity, unit, name, status string, isActive bool) (string, error) {
	return "", nil
}
func (stubNoteStore) GetInstructionCompletionStatus(ctx context.Context, noteID string) (*models.InstructionCompletionStatus, error) {
	return nil, nil
}
func (stubNoteStore) FindDuplicates(ctx context.Context, contentHash, title, excludeNoteID string) (*models.DuplicateCheckResult, error) {
	return nil, nil
}
func (stubNoteStore) UpsertEvernoteMetadataSource(ctx context.Context, metadataID, source string) error {
	return nil
}
func (stubNoteStore) ConnectNoteToSource(ctx context.Context, noteID, sourceID string) error {
	return nil
}
func (stubNoteStore) SetNoteCategories(ctx context.Context, noteID string, categories []string) error {
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := arbor.NewLogger()
	broadcaster := status.NewBroadcaster(logger, status.Options{})
	t.Cleanup(func() { broadcaster.Close() })

	handlerSet := Handlers{
		API:     handlers.NewAPIHandler(logger),
		Imports: handlers.NewImportHandler(stubSubmitter{}, stubImportStore{}, logger),
		Notes:   handlers.NewNoteHandler(stubNoteStore{}, cache.NewService(context.Background(), &common.CacheConfig{}, logger), logger),
		WS:      handlers.NewWebSocketHandler(broadcaster, nil, logger),
	}
	s := New(&common.ServerConfig{Host: "localhost", Port: 0}, handlerSet, nil, logger)

	server := httptest.NewServer(s.withConditionalMiddleware(s.router))
	t.Cleanup(server.Close)
	return server
}

func TestRoutes_Health(t *testing.T) {
	server := newTestServer(t)

	for _, path := range []string{"/healthz", "/api/health", "/api/version"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRoutes_UnknownAPIPathIs404(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t)

	req, err := http.NewRequest("DELETE", server.URL+"/api/imports", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRoutes_CORSPreflight(t *testing.T) {
	server := newTestServer(t)

	req, err := http.NewRequest("OPTIONS", server.URL+"/api/notes", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
