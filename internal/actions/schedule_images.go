package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// ScheduleImagesAction fans the parsed file's image references out to the
// image queue. Images are best-effort: no sentinel is scheduled and the note
// can go terminal before every image settles.
type ScheduleImagesAction struct {
	BaseAction
}

// NewScheduleImagesAction creates the schedule_images action
func NewScheduleImagesAction(deps *Dependencies) Action {
	return &ScheduleImagesAction{BaseAction: newBase(ActionScheduleImages, deps)}
}

func (a *ScheduleImagesAction) ValidateInput(data json.RawMessage) error {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if payload.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *ScheduleImagesAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	payload, err := models.NotePipelineDataFromJSON(data)
	if err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Queues == nil {
		return nil, pipeerrors.MissingDependency(a.name, "queue service")
	}
	if a.deps.Tracker == nil {
		return nil, pipeerrors.MissingDependency(a.name, "completion tracker")
	}

	var refs []models.ImageRef
	if payload.File != nil {
		refs = payload.File.ImageRefs
	}
	if len(refs) == 0 {
		if err := a.deps.Tracker.SetExpectedCounts(payload.NoteID, map[models.CompletionKind]int{models.KindImage: 0}); err != nil {
			return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
		}
		return data, nil
	}

	for _, ref := range refs {
		job := &models.ImageJobData{
			JobID:     common.LineJobID(payload.NoteID, string(models.KindImage), ref.LineIndex),
			NoteID:    payload.NoteID,
			ImportID:  payload.ImportID,
			ImageURL:  ref.URL,
			LineIndex: ref.LineIndex,
		}
		if err := a.deps.Queues.Add(ctx, common.QueueImage, ActionProcessImage, job, nil); err != nil {
			return nil, pipeerrors.Newf(pipeerrors.KindTransientIO, a.name,
				"failed to enqueue image %d: %v", ref.LineIndex, err)
		}
	}

	if err := a.deps.Tracker.SetExpectedCounts(payload.NoteID, map[models.CompletionKind]int{models.KindImage: len(refs)}); err != nil {
		return nil, pipeerrors.New(pipeerrors.KindProgrammingError, a.name, err)
	}

	progress := models.NewStatusEvent(payload.ImportID, models.StatusPending,
		models.ContextImageProcessing, fmt.Sprintf("0/%d images", len(refs)))
	progress.NoteID = payload.NoteID
	progress.IndentLevel = 2
	progress.WithCounts(0, len(refs))
	a.broadcast(ctx, progress)

	a.logger().Info().
		Str("note_id", payload.NoteID).
		Int("count", len(refs)).
		Msg("Image jobs scheduled")
	return data, nil
}
