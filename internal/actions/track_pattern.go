package actions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// TrackPatternAction persists one ingredient-grammar pattern hit. Pattern
// records exist for grammar tuning and never feed note completion.
type TrackPatternAction struct {
	BaseAction
}

// NewTrackPatternAction creates the track_pattern action
func NewTrackPatternAction(deps *Dependencies) Action {
	return &TrackPatternAction{BaseAction: newBase(ActionTrackPattern, deps)}
}

func (a *TrackPatternAction) ValidateInput(data json.RawMessage) error {
	var job models.PatternJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if job.NoteID == "" {
		return pipeerrors.InvalidInput(a.name, "note ID is required")
	}
	return nil
}

func (a *TrackPatternAction) Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error) {
	var job models.PatternJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, pipeerrors.Newf(pipeerrors.KindInvalidInput, a.name, "malformed payload: %v", err)
	}
	if a.deps.Patterns == nil {
		return nil, pipeerrors.MissingDependency(a.name, "pattern storage")
	}

	record := &models.PatternRecord{
		ID:         uuid.New().String(),
		NoteID:     job.NoteID,
		LineIndex:  job.LineIndex,
		Reference:  job.Reference,
		PatternKey: job.PatternKey,
		Matched:    job.Matched,
		CreatedAt:  time.Now(),
	}
	if err := a.deps.Patterns.SavePattern(ctx, record); err != nil {
		return nil, pipeerrors.New(pipeerrors.KindRepositoryFailure, a.name, err)
	}

	a.logger().Debug().
		Str("note_id", job.NoteID).
		Str("pattern_key", job.PatternKey).
		Bool("matched", job.Matched).
		Msg("Pattern hit recorded")
	return data, nil
}
