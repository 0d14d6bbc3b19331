package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/tubegrabba/internal/domain"
	"github.com/iconidentify/tubegrabba/internal/extractor"
	"github.com/iconidentify/tubegrabba/internal/repository"
)

// historyTimeout bounds job history writes made after the request is gone.
const historyTimeout = 5 * time.Second

// Scratch file names inside a job workspace. The extractor picks the
// extension of the source file.
const (
	sourceBase = "source"
	mp3Name    = "output.mp3"
)

// contentTypes covers the containers the extractors produce.
var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
}

// DownloadConfig configures the download orchestrator.
type DownloadConfig struct {
	ExtractTimeout   time.Duration
	TranscodeTimeout time.Duration
	MinFreeBytes     int64
}

// DownloadService produces one file per request in a private workspace and
// hands it to the caller as a stream that cleans up after itself.
type DownloadService struct {
	extractor  extractor.Extractor
	transcoder Transcoder
	scratch    repository.Scratch
	jobs       repository.JobRepository
	cfg        DownloadConfig
	logger     *slog.Logger
}

// NewDownloadService creates a new download service.
func NewDownloadService(
	ext extractor.Extractor,
	transcoder Transcoder,
	scratch repository.Scratch,
	jobs repository.JobRepository,
	cfg DownloadConfig,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		extractor:  ext,
		transcoder: transcoder,
		scratch:    scratch,
		jobs:       jobs,
		cfg:        cfg,
		logger:     logger,
	}
}

// DownloadRequest names the artifact a caller wants.
type DownloadRequest struct {
	VideoID  domain.VideoID
	FormatID domain.FormatID
	Output   domain.OutputKind
}

// Download is a ready artifact. Body must be closed; closing it removes every
// temporary file of the job.
type Download struct {
	Body        *JobStream
	Size        int64
	ContentType string
	Filename    string
	JobID       domain.JobID
}

// Download runs one job: allocate a workspace, fetch exactly the requested
// format, transcode to mp3 for audio requests, and open the result. On error
// the workspace is already gone when Download returns.
func (s *DownloadService) Download(ctx context.Context, req DownloadRequest) (*Download, error) {
	if err := req.VideoID.Validate(); err != nil {
		return nil, domain.NewBrokerError(req.VideoID, "download", err, errors.New("video id is required"))
	}
	if err := req.FormatID.Validate(); err != nil {
		return nil, domain.NewBrokerError(req.VideoID, "download", err, errors.New("format id is required"))
	}
	if req.Output == "" {
		req.Output = domain.OutputVideo
	}

	if err := s.checkFreeSpace(); err != nil {
		return nil, domain.NewBrokerError(req.VideoID, "download", domain.ErrIOFailed, err)
	}

	jobID := domain.JobID(uuid.NewString())
	ws, err := s.scratch.Allocate(jobID.String())
	if err != nil {
		return nil, domain.NewBrokerError(req.VideoID, "allocate", domain.ErrIOFailed, err)
	}

	job := domain.NewJob(jobID, req.VideoID, req.FormatID, req.Output)
	logger := s.logger.With(
		"job_id", jobID,
		"video_id", req.VideoID,
		"format_id", req.FormatID,
		"output", req.Output,
	)
	s.record(ctx, job, logger)

	done := s.completion(job, ws, logger)
	fail := func(err error) (*Download, error) {
		done(0, err)
		return nil, err
	}

	// Step 1: Fetch the format
	logger.Info("fetching format", "extractor", s.extractor.Name())
	artifact, err := s.fetch(ctx, req, ws)
	if err != nil {
		return fail(domain.NewBrokerError(req.VideoID, "fetch", domain.ErrExtractionFailed, err))
	}

	// Step 2: Convert audio requests
	if req.Output == domain.OutputAudio {
		artifact, err = s.toMP3(ctx, artifact, ws, logger)
		if err != nil {
			return fail(domain.NewBrokerError(req.VideoID, "transcode", domain.ErrTranscodeFailed, err))
		}
	}

	// Step 3: Open for streaming
	file, err := os.Open(artifact)
	if err != nil {
		return fail(domain.NewBrokerError(req.VideoID, "open", domain.ErrIOFailed, err))
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fail(domain.NewBrokerError(req.VideoID, "open", domain.ErrIOFailed, err))
	}

	ext := outputExt(req.Output, artifact)
	job.MarkStreaming()
	s.update(ctx, job, logger)

	logger.Info("artifact ready", "size", stat.Size(), "ext", ext)

	return &Download{
		Body:        &JobStream{file: file, size: stat.Size(), done: done},
		Size:        stat.Size(),
		ContentType: ContentType(ext),
		Filename:    OutputFilename(req.VideoID, req.FormatID, ext),
		JobID:       jobID,
	}, nil
}

func (s *DownloadService) checkFreeSpace() error {
	if s.cfg.MinFreeBytes <= 0 {
		return nil
	}
	free, err := s.scratch.FreeBytes()
	if err != nil {
		return fmt.Errorf("check free space: %w", err)
	}
	if free < s.cfg.MinFreeBytes {
		return fmt.Errorf("scratch space has %d bytes free, need %d", free, s.cfg.MinFreeBytes)
	}
	return nil
}

func (s *DownloadService) fetch(ctx context.Context, req DownloadRequest, ws *repository.Workspace) (string, error) {
	if s.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExtractTimeout)
		defer cancel()
	}

	path, err := s.extractor.Fetch(ctx, req.VideoID, req.FormatID, filepath.Join(ws.Dir(), sourceBase))
	if path != "" {
		ws.Register(path)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func (s *DownloadService) toMP3(ctx context.Context, source string, ws *repository.Workspace, logger *slog.Logger) (string, error) {
	if s.cfg.TranscodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TranscodeTimeout)
		defer cancel()
	}

	info, err := s.transcoder.Probe(ctx, source)
	switch {
	case err != nil:
		logger.Debug("probe failed, transcoding anyway", "error", err)
	case info.IsMP3():
		logger.Debug("source is already mp3")
		return source, nil
	}

	start := time.Now()
	out, err := s.transcoder.ToMP3(ctx, source, ws.Path(mp3Name))
	if err != nil {
		return "", err
	}
	logger.Info("transcoded to mp3", "duration", time.Since(start))
	return out, nil
}

// completion returns the job's completion hook. The first call releases the
// workspace and records the outcome; later calls do nothing.
func (s *DownloadService) completion(job *domain.Job, ws *repository.Workspace, logger *slog.Logger) func(int64, error) {
	var once sync.Once
	return func(bytesSent int64, jobErr error) {
		once.Do(func() {
			if err := ws.Release(); err != nil {
				logger.Error("failed to remove job workspace", "dir", ws.Dir(), "error", err)
			}

			if jobErr != nil {
				job.MarkFailed(jobErr.Error())
				logger.Warn("download failed", "error", jobErr, "bytes_sent", bytesSent)
			} else {
				job.MarkCompleted(bytesSent)
				logger.Info("download completed",
					"bytes_sent", bytesSent,
					"duration", job.UpdatedAt.Sub(job.CreatedAt),
				)
			}

			ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			defer cancel()
			s.update(ctx, job, logger)
		})
	}
}

func (s *DownloadService) record(ctx context.Context, job *domain.Job, logger *slog.Logger) {
	if err := s.jobs.Record(context.WithoutCancel(ctx), job); err != nil {
		logger.Warn("failed to record job", "error", err)
	}
}

func (s *DownloadService) update(ctx context.Context, job *domain.Job, logger *slog.Logger) {
	if err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Warn("failed to update job", "status", job.Status, "error", err)
	}
}

// JobStream reads a job's artifact. Close runs the job's completion hook once;
// the job counts as completed only if every byte was read and Abort was not called.
type JobStream struct {
	file *os.File
	size int64
	read int64
	done func(int64, error)

	mu      sync.Mutex
	aborted error
	once    sync.Once
	err     error
}

// Read implements io.Reader.
func (j *JobStream) Read(p []byte) (int, error) {
	n, err := j.file.Read(p)
	j.read += int64(n)
	return n, err
}

// Abort marks the job failed, for example when the client went away.
// The caller must still Close the stream.
func (j *JobStream) Abort(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.aborted == nil {
		j.aborted = err
	}
}

// Close closes the artifact and cleans up the job.
func (j *JobStream) Close() error {
	j.once.Do(func() {
		j.err = j.file.Close()

		j.mu.Lock()
		jobErr := j.aborted
		j.mu.Unlock()

		if jobErr == nil && j.read < j.size {
			jobErr = fmt.Errorf("stream closed after %d of %d bytes", j.read, j.size)
		}
		j.done(j.read, jobErr)
	})
	return j.err
}

var _ io.ReadCloser = (*JobStream)(nil)

// OutputFilename builds the attachment name <videoId>-<formatId>.<ext>.
func OutputFilename(videoID domain.VideoID, formatID domain.FormatID, ext string) string {
	return sanitizeFilename(videoID.String() + "-" + formatID.String() + "." + ext)
}

// ContentType returns the media type for a file extension.
func ContentType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func outputExt(output domain.OutputKind, artifact string) string {
	if output == domain.OutputAudio {
		return "mp3"
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(artifact), "."))
	if ext == "" {
		return "mp4"
	}
	return ext
}

// sanitizeFilename replaces characters that are unsafe in a path or a
// quoted Content-Disposition value.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\"':*?<>|`, r):
			return '_'
		default:
			return r
		}
	}, name)
}
