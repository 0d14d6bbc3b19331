package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/tubegrabba/internal/domain"
	"github.com/iconidentify/tubegrabba/internal/service"
)

// ExportHandler handles metadata and thumbnail exports.
type ExportHandler struct {
	exportSvc *service.ExportService
	logger    *slog.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(exportSvc *service.ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		exportSvc: exportSvc,
		logger:    logger,
	}
}

// Metadata handles GET /api/metadata/{videoId}?format=txt|json|yaml
func (h *ExportHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	videoID := domain.VideoID(chi.URLParam(r, "videoId"))

	file, err := h.exportSvc.Metadata(r.Context(), videoID, r.URL.Query().Get("format"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "format must be txt, json or yaml")
			return
		}
		h.logger.Error("metadata export failed", "video_id", videoID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export metadata")
		return
	}

	setAttachment(w, file.Filename, file.ContentType, int64(len(file.Content)))
	w.WriteHeader(http.StatusOK)
	w.Write(file.Content)
}

// Thumbnail handles GET /api/thumbnail/{videoId}
func (h *ExportHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	videoID := domain.VideoID(chi.URLParam(r, "videoId"))

	thumb, err := h.exportSvc.Thumbnail(r.Context(), videoID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "videoId is required")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "thumbnail not found")
		default:
			h.logger.Error("thumbnail export failed", "video_id", videoID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to export thumbnail")
		}
		return
	}
	defer thumb.Body.Close()

	setAttachment(w, thumb.Filename, thumb.ContentType, thumb.Size)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, thumb.Body); err != nil {
		h.logger.Warn("thumbnail stream interrupted", "video_id", videoID, "error", err)
		panic(http.ErrAbortHandler)
	}
}
