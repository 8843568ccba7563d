package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// maxImageBytes bounds one image download
const maxImageBytes = 20 << 20

// ProcessImageAction downloads one referenced image and stores it in the
// object bucket under notes/<noteId>/images/. Images are best-effort: the
// note never fails on an image, but the worker still retries transient
// download errors before giving up.
type ProcessImageAction struct {
	BaseAction
	client *http.Client
}

// NewProcessImageAction creates the process_image action
func NewProcessImageAction(deps *Dependencies) Action {
	return &ProcessImageAction{
		BaseAction: newBase(ActionProcessImage, deps),
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *ProcessImageAction) ValidateInput(data json.RawMessage) error {
	var job models.ImageJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if err := job.Validate(); err != nil {
		return pipeerrors.InvalidInput(a.name, "%v", err)
	}
	if !strings.HasPrefix(job.ImageURL, "http://") && !strings.HasPrefix(job.ImageURL, "https://") {
		return pipeerrors.InvalidInput(a.name, "image URL must be absolute, got %q", job.ImageURL)
	}
	return nil
}

func (a *ProcessImageAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	var job models.ImageJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Objects == nil {
		return nil, pipeerrors.MissingDependency(a.name, "object storage")
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	body, err := a.download(ctx, job.ImageURL)
	if err != nil {
		return nil, err
	}

	key := a.objectKey(&job)
	result, err := a.deps.Objects.UploadBuffer(ctx, body, key, "")
	if err != nil {
		return nil, pipeerrors.New(pipeerrors.KindTransientIO, a.name, err)
	}

	if err := a.deps.Tracker.MarkLineCompleted(job.NoteID, models.KindImage, job.LineIndex); err != nil {
		return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
	}
	a.broadcastProgress(ctx, &job)

	a.logger().Info().
		Str("note_id", job.NoteID).
		Str("key", result.Key).
		Int64("size", result.Size).
		Msg("Image stored")
	return data, nil
}

func (a *ProcessImageAction) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pipeerrors.InvalidInput(a.name, "bad image URL %q: %v", url, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, pipeerrors.New(pipeerrors.KindTransientIO, a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := pipeerrors.KindTransientIO
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// The URL is wrong, not the network; retrying will not help
			kind = pipeerrors.KindInvalidInput
		}
		return nil, pipeerrors.Newf(kind, a.name, "image fetch returned %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, pipeerrors.New(pipeerrors.KindTransientIO, a.name, err)
	}
	if len(body) > maxImageBytes {
		return nil, pipeerrors.InvalidInput(a.name, "image exceeds %d bytes", maxImageBytes)
	}
	return body, nil
}

// objectKey derives the bucket key, keeping the source extension when present
func (a *ProcessImageAction) objectKey(job *models.ImageJobData) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(path.Base(job.ImageURL), "?", 2)[0]))
	if ext == "" {
		ext = ".img"
	}
	return fmt.Sprintf("notes/%s/images/%d%s", job.NoteID, job.LineIndex, ext)
}

func (a *ProcessImageAction) broadcastProgress(ctx context.Context, job *models.ImageJobData) {
	progress, err := a.deps.Tracker.Progress(job.NoteID, models.KindImage)
	if err != nil {
		a.logger().Warn().Err(err).Str("note_id", job.NoteID).Msg("Failed to read image progress")
		return
	}

	status := models.StatusPending
	if progress.Complete {
		status = models.StatusCompleted
	}
	event := models.NewStatusEvent(job.ImportID, status, models.ContextImageProcessing,
		fmt.Sprintf("%d/%d images", progress.Observed, progress.Expected))
	event.NoteID = job.NoteID
	event.IndentLevel = 2
	event.WithCounts(progress.Observed, progress.Expected)
	a.broadcast(ctx, event)
}
