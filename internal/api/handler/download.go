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

// DownloadHandler serves format listings and downloads.
type DownloadHandler struct {
	formatSvc   *service.FormatService
	downloadSvc *service.DownloadService
	logger      *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(formatSvc *service.FormatService, downloadSvc *service.DownloadService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		formatSvc:   formatSvc,
		downloadSvc: downloadSvc,
		logger:      logger,
	}
}

// Options handles GET /api/download-options/{videoId}
func (h *DownloadHandler) Options(w http.ResponseWriter, r *http.Request) {
	videoID := domain.VideoID(chi.URLParam(r, "videoId"))

	set, err := h.formatSvc.Resolve(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "videoId is required")
			return
		}
		h.logger.Error("failed to resolve formats", "video_id", videoID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch download options")
		return
	}

	writeJSON(w, http.StatusOK, set)
}

// Download handles GET /api/download/{videoId}?formatId=&type=
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	videoID := domain.VideoID(chi.URLParam(r, "videoId"))
	query := r.URL.Query()

	formatID := domain.FormatID(query.Get("formatId"))
	if formatID.Validate() != nil {
		writeError(w, http.StatusBadRequest, "formatId is required")
		return
	}
	output, err := domain.ParseOutputKind(query.Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "type must be video or audio")
		return
	}

	dl, err := h.downloadSvc.Download(r.Context(), service.DownloadRequest{
		VideoID:  videoID,
		FormatID: formatID,
		Output:   output,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "videoId is required")
			return
		}
		h.logger.Error("download failed", "video_id", videoID, "format_id", formatID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to download file")
		return
	}
	defer dl.Body.Close()

	setAttachment(w, dl.Filename, dl.ContentType, dl.Size)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Body); err != nil {
		dl.Body.Abort(err)
		h.logger.Warn("stream interrupted", "job_id", dl.JobID, "error", err)
		// Headers are sent; abort so the client sees a truncated response.
		panic(http.ErrAbortHandler)
	}
}
