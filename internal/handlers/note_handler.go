package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/cache"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// NoteHandler serves persisted notes. Reads go through the cache under the
// same keys save_note invalidates, so a fresh write is visible on the next
// request.
type NoteHandler struct {
	notes  interfaces.NoteStorage
	cache  interfaces.CacheService
	logger arbor.ILogger
}

func NewNoteHandler(notes interfaces.NoteStorage, cacheService interfaces.CacheService, logger arbor.ILogger) *NoteHandler {
	return &NoteHandler{
		notes:  notes,
		cache:  cacheService,
		logger: logger,
	}
}

// ListNotesHandler handles GET /api/notes
func (h *NoteHandler) ListNotesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	payload, err := h.cache.GetOrSet(r.Context(), cache.DatabaseQueryKey("get_notes"), func(ctx context.Context) (interface{}, error) {
		notes, err := h.notes.GetNotes(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"notes": notes,
			"count": len(notes),
		}, nil
	}, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list notes")
		WriteError(w, http.StatusInternalServerError, "Failed to list notes")
		return
	}

	WriteRawJSON(w, http.StatusOK, payload)
}

// GetNoteHandler handles GET /api/notes/{id}, returning the note with its
// evernote metadata record when one exists
func (h *NoteHandler) GetNoteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	noteID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/notes/"), "/")
	if noteID == "" {
		WriteError(w, http.StatusBadRequest, "Note ID is required")
		return
	}

	payload, err := h.cache.GetOrSet(r.Context(), cache.NoteMetadataKey(noteID), func(ctx context.Context) (interface{}, error) {
		note, meta, err := h.notes.GetNoteWithEvernoteMetadata(ctx, noteID)
		if err != nil {
			return nil, err
		}
		if note == nil {
			return nil, models.ErrNoteNotFound
		}
		return map[string]interface{}{
			"note":              note,
			"evernote_metadata": meta,
		}, nil
	}, nil)
	if errors.Is(err, models.ErrNoteNotFound) {
		WriteError(w, http.StatusNotFound, "Note not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("note_id", noteID).Msg("Failed to get note")
		WriteError(w, http.StatusInternalServerError, "Failed to get note")
		return
	}

	WriteRawJSON(w, http.StatusOK, payload)
}

// GetNoteStatusHandler handles GET /api/notes/{id}/status with the note's
// instruction completion progress
func (h *NoteHandler) GetNoteStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	noteID := strings.Trim(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/notes/"), "/status"), "/")
	if noteID == "" {
		WriteError(w, http.StatusBadRequest, "Note ID is required")
		return
	}

	payload, err := h.cache.GetOrSet(r.Context(), cache.NoteStatusKey(noteID), func(ctx context.Context) (interface{}, error) {
		status, err := h.notes.GetInstructionCompletionStatus(ctx, noteID)
		if err != nil {
			return nil, err
		}
		if status == nil {
			return nil, models.ErrNoteNotFound
		}
		return status, nil
	}, nil)
	if errors.Is(err, models.ErrNoteNotFound) {
		WriteError(w, http.StatusNotFound, "Note not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("note_id", noteID).Msg("Failed to get note status")
		WriteError(w, http.StatusInternalServerError, "Failed to get note status")
		return
	}

	WriteRawJSON(w, http.StatusOK, payload)
}
