package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// maxImportBytes bounds submitted HTML payloads
const maxImportBytes = 10 << 20 // 10 MiB

// ImportSubmitter accepts a new HTML submission
type ImportSubmitter interface {
	Submit(ctx context.Context, source, content string, options models.PipelineOptions) (*models.ImportRecord, error)
}

// ImportHandler serves the import submission and replay endpoints
type ImportHandler struct {
	submitter ImportSubmitter
	imports   interfaces.ImportStorage
	logger    arbor.ILogger
}

func NewImportHandler(submitter ImportSubmitter, imports interfaces.ImportStorage, logger arbor.ILogger) *ImportHandler {
	return &ImportHandler{
		submitter: submitter,
		imports:   imports,
		logger:    logger,
	}
}

// importRequest is the JSON submission shape
type importRequest struct {
	Content string                 `json:"content"`
	Source  string                 `json:"source,omitempty"`
	Options models.PipelineOptions `json:"options,omitempty"`
}

// SubmitImportHandler handles POST /api/imports. It accepts either a
// multipart upload (field "file") or a JSON body with the HTML inline.
func (h *ImportHandler) SubmitImportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	source, content, options, err := h.readSubmission(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.submitter.Submit(r.Context(), source, content, options)
	if err != nil {
		h.logger.Error().Err(err).Str("source", source).Msg("Import submission failed")
		WriteError(w, http.StatusInternalServerError, "Failed to submit import")
		return
	}

	WriteJSON(w, http.StatusAccepted, record)
}

func (h *ImportHandler) readSubmission(r *http.Request) (source, content string, options models.PipelineOptions, err error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err = r.ParseMultipartForm(maxImportBytes); err != nil {
			return "", "", options, err
		}
		file, header, fileErr := r.FormFile("file")
		if fileErr != nil {
			return "", "", options, fileErr
		}
		defer file.Close()

		data, readErr := io.ReadAll(file)
		if readErr != nil {
			return "", "", options, readErr
		}
		source = header.Filename
		if override := r.FormValue("source"); override != "" {
			source = override
		}
		options.SkipFollowupTasks = r.FormValue("skip_followup_tasks") == "true"
		options.ClearIngredientCache = r.FormValue("clear_ingredient_cache") == "true"
		return source, string(data), options, nil
	}

	var req importRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", "", options, err
	}
	source = req.Source
	if source == "" {
		source = "inline"
	}
	return source, req.Content, req.Options, nil
}

// ListImportsHandler handles GET /api/imports
func (h *ImportHandler) ListImportsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit, offset := GetPaginationParams(r)
	records, err := h.imports.ListImports(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list imports")
		WriteError(w, http.StatusInternalServerError, "Failed to list imports")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"imports": records,
		"count":   len(records),
	})
}

// GetImportHandler handles GET /api/imports/{id}
func (h *ImportHandler) GetImportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	importID := importIDFromPath(r.URL.Path)
	if importID == "" {
		WriteError(w, http.StatusBadRequest, "Import ID is required")
		return
	}

	record, err := h.imports.GetImport(r.Context(), importID)
	if err != nil {
		h.logger.Error().Err(err).Str("import_id", importID).Msg("Failed to get import")
		WriteError(w, http.StatusInternalServerError, "Failed to get import")
		return
	}
	if record == nil {
		WriteError(w, http.StatusNotFound, "Import not found")
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// GetImportEventsHandler handles GET /api/imports/{id}/events. Clients
// replay missed events after reconnect with ?after_seq=<last seen>.
func (h *ImportHandler) GetImportEventsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	importID := importIDFromPath(strings.TrimSuffix(r.URL.Path, "/events"))
	if importID == "" {
		WriteError(w, http.StatusBadRequest, "Import ID is required")
		return
	}

	var afterSeq int64
	if seqStr := r.URL.Query().Get("after_seq"); seqStr != "" {
		parsed, err := strconv.ParseInt(seqStr, 10, 64)
		if err != nil || parsed < 0 {
			WriteError(w, http.StatusBadRequest, "after_seq must be a non-negative integer")
			return
		}
		afterSeq = parsed
	}
	limit, _ := GetPaginationParams(r)

	events, err := h.imports.GetEvents(r.Context(), importID, afterSeq, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("import_id", importID).Msg("Failed to get import events")
		WriteError(w, http.StatusInternalServerError, "Failed to get import events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"import_id": importID,
		"events":    events,
		"count":     len(events),
	})
}

func importIDFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/imports/")
	if rest == path {
		return ""
	}
	return strings.Trim(rest, "/")
}
