package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/tubegrabba/internal/repository"
)

var startTime = time.Now()

// probeTimeout bounds each dependency check made by /ready and /api/stats.
const probeTimeout = 5 * time.Second

// VersionReporter reports the version of an external tool.
type VersionReporter interface {
	Version(ctx context.Context) (string, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	scratch repository.Scratch
	jobs    repository.JobRepository
	ffmpeg  VersionReporter
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler. ffmpeg may be nil.
func NewHealthHandler(scratch repository.Scratch, jobs repository.JobRepository, ffmpeg VersionReporter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		scratch: scratch,
		jobs:    jobs,
		ffmpeg:  ffmpeg,
		logger:  logger,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe. The service is ready when the
// scratch directory is writable and the job history answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := map[string]string{
		"scratch": "ok",
		"history": "ok",
	}
	status := http.StatusOK

	if err := h.scratch.Writable(); err != nil {
		h.logger.Warn("scratch not writable", "error", err)
		checks["scratch"] = "error"
		status = http.StatusServiceUnavailable
	}
	if err := h.jobs.Ping(ctx); err != nil {
		h.logger.Warn("job history unreachable", "error", err)
		checks["history"] = "error"
		status = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if status != http.StatusOK {
		resp.Status = "error"
	}
	writeJSON(w, status, resp)
}

// SystemStats contains service statistics.
type SystemStats struct {
	Uptime           int64                `json:"uptime_seconds"`
	UptimeHuman      string               `json:"uptime_human"`
	MemAllocMB       int64                `json:"mem_alloc_mb"`
	MemSysMB         int64                `json:"mem_sys_mb"`
	NumGoroutines    int                  `json:"num_goroutines"`
	NumCPU           int                  `json:"num_cpu"`
	CPUPercent       float64              `json:"cpu_percent"`
	ScratchFreeBytes int64                `json:"scratch_free_bytes"`
	Jobs             *repository.JobStats `json:"jobs,omitempty"`
	FFmpegVersion    string               `json:"ffmpeg_version,omitempty"`
}

// Stats handles GET /api/stats - job history counts and scratch space.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    getCPUUsage(),
	}

	jobs, err := h.jobs.Stats(ctx)
	if err != nil {
		h.logger.Error("failed to read job stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	stats.Jobs = jobs

	if free, err := h.scratch.FreeBytes(); err == nil {
		stats.ScratchFreeBytes = free
	} else {
		h.logger.Warn("failed to read scratch free space", "error", err)
	}

	if h.ffmpeg != nil {
		if v, err := h.ffmpeg.Version(ctx); err == nil {
			stats.FFmpegVersion = v
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
