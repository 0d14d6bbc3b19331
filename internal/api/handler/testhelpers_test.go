package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/tubegrabba/internal/config"
	"github.com/iconidentify/tubegrabba/internal/domain"
	"github.com/iconidentify/tubegrabba/internal/downloader"
	"github.com/iconidentify/tubegrabba/internal/repository"
	"github.com/iconidentify/tubegrabba/internal/service"
	"github.com/iconidentify/tubegrabba/pkg/ffmpeg"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockExtractor is a test implementation of extractor.Extractor.
type mockExtractor struct {
	catalog     []domain.CatalogEntry
	catalogErr  error
	metadata    *domain.VideoMetadata
	metadataErr error
	fetchErr    error
	content     string

	catalogCalls atomic.Int32
	fetchCalls   atomic.Int32
}

func (m *mockExtractor) Name() string { return "mock" }

func (m *mockExtractor) Catalog(ctx context.Context, videoID domain.VideoID) ([]domain.CatalogEntry, error) {
	m.catalogCalls.Add(1)
	if m.catalogErr != nil {
		return nil, m.catalogErr
	}
	return m.catalog, nil
}

func (m *mockExtractor) Metadata(ctx context.Context, videoID domain.VideoID) (*domain.VideoMetadata, error) {
	if m.metadataErr != nil {
		return nil, m.metadataErr
	}
	return m.metadata, nil
}

func (m *mockExtractor) Fetch(ctx context.Context, videoID domain.VideoID, formatID domain.FormatID, destBase string) (string, error) {
	m.fetchCalls.Add(1)
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	content := m.content
	if content == "" {
		content = "media:" + string(videoID) + ":" + string(formatID)
	}
	path := destBase + ".mp4"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// mockTranscoder writes a fixed mp3 body.
type mockTranscoder struct {
	toMP3Err error
}

func (m *mockTranscoder) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	return &ffmpeg.MediaInfo{FormatName: "mov,mp4,m4a,3gp,3g2,mj2", HasAudio: true, AudioCodec: "aac"}, nil
}

func (m *mockTranscoder) ToMP3(ctx context.Context, inputPath, outputPath string) (string, error) {
	if m.toMP3Err != nil {
		return "", m.toMP3Err
	}
	if err := os.WriteFile(outputPath, []byte("ID3mp3"), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

// mockJobRepository wraps the in-memory repository with injectable failures.
type mockJobRepository struct {
	*repository.InMemoryJobRepository
	statsErr error
	pingErr  error
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{InMemoryJobRepository: repository.NewInMemoryJobRepository(0)}
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.JobStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.InMemoryJobRepository.Stats(ctx)
}

func (m *mockJobRepository) Ping(ctx context.Context) error {
	if m.pingErr != nil {
		return m.pingErr
	}
	return m.InMemoryJobRepository.Ping(ctx)
}

// mockScratch is a scratch whose probes can be made to fail.
type mockScratch struct {
	*repository.FilesystemScratch
	writableErr error
	free        int64
}

func (m *mockScratch) Writable() error {
	if m.writableErr != nil {
		return m.writableErr
	}
	return m.FilesystemScratch.Writable()
}

func (m *mockScratch) FreeBytes() (int64, error) {
	if m.free > 0 {
		return m.free, nil
	}
	return m.FilesystemScratch.FreeBytes()
}

// mockVersion reports a fixed tool version.
type mockVersion string

func (v mockVersion) Version(ctx context.Context) (string, error) {
	return string(v), nil
}

// testEnv is a router backed by real services and fake tools.
type testEnv struct {
	router    *chi.Mux
	download  *DownloadHandler
	export    *ExportHandler
	health    *HealthHandler
	extractor *mockExtractor
	scratch   *mockScratch
	jobs      *mockJobRepository
}

func newTestEnv(t *testing.T, ext *mockExtractor) *testEnv {
	t.Helper()

	fs, err := repository.NewFilesystemScratch(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatalf("NewFilesystemScratch failed: %v", err)
	}
	scratch := &mockScratch{FilesystemScratch: fs}
	jobs := newMockJobRepository()

	dl := downloader.NewHTTPDownloader(config.DownloadConfig{
		Timeout:       time.Second,
		ReadTimeout:   time.Second,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 10 * time.Millisecond,
		MaxAttempts:   2,
		UserAgent:     "test-agent",
	}, testLogger())

	formatSvc := service.NewFormatService(ext, time.Second, testLogger())
	downloadSvc := service.NewDownloadService(ext, &mockTranscoder{}, scratch, jobs, service.DownloadConfig{
		ExtractTimeout:   time.Second,
		TranscodeTimeout: time.Second,
	}, testLogger())
	exportSvc := service.NewExportService(ext, dl, time.Second, testLogger())

	downloadHandler := NewDownloadHandler(formatSvc, downloadSvc, testLogger())
	exportHandler := NewExportHandler(exportSvc, testLogger())
	healthHandler := NewHealthHandler(scratch, jobs, mockVersion("ffmpeg version 6.1"), testLogger())

	r := chi.NewRouter()
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/api/stats", healthHandler.Stats)
	r.Get("/api/download-options/{videoId}", downloadHandler.Options)
	r.Get("/api/download/{videoId}", downloadHandler.Download)
	r.Get("/api/metadata/{videoId}", exportHandler.Metadata)
	r.Get("/api/thumbnail/{videoId}", exportHandler.Thumbnail)

	return &testEnv{
		router:    r,
		download:  downloadHandler,
		export:    exportHandler,
		health:    healthHandler,
		extractor: ext,
		scratch:   scratch,
		jobs:      jobs,
	}
}

func (e *testEnv) serve(w http.ResponseWriter, r *http.Request) {
	e.router.ServeHTTP(w, r)
}

// assertScratchEmpty fails if any job workspace remains under the scratch root.
func (e *testEnv) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.scratch.Root())
	if err != nil {
		t.Fatalf("read scratch root: %v", err)
	}
	for _, entry := range entries {
		t.Errorf("leftover in scratch root: %s", entry.Name())
	}
}
