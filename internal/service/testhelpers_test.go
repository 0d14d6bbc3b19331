package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iconidentify/tubegrabba/internal/domain"
	"github.com/iconidentify/tubegrabba/internal/repository"
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
	catalogFunc func(ctx context.Context) ([]domain.CatalogEntry, error)
	metadata    *domain.VideoMetadata
	metadataErr error

	// fetchExt is the extension the fake tool picks; default mp4
	fetchExt  string
	fetchErr  error
	fetchFunc func(ctx context.Context, destBase string) (string, error)

	catalogCalls atomic.Int32
	fetchCalls   atomic.Int32

	mu        sync.Mutex
	destBases []string
}

func (m *mockExtractor) Name() string { return "mock" }

func (m *mockExtractor) Catalog(ctx context.Context, videoID domain.VideoID) ([]domain.CatalogEntry, error) {
	m.catalogCalls.Add(1)
	if m.catalogFunc != nil {
		return m.catalogFunc(ctx)
	}
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
	m.mu.Lock()
	m.destBases = append(m.destBases, destBase)
	m.mu.Unlock()

	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, destBase)
	}
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	ext := m.fetchExt
	if ext == "" {
		ext = "mp4"
	}
	path := destBase + "." + ext
	if err := os.WriteFile(path, []byte("media:"+string(videoID)+":"+string(formatID)), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// mockTranscoder is a test implementation of Transcoder.
type mockTranscoder struct {
	info     *ffmpeg.MediaInfo
	probeErr error
	toMP3Err error

	toMP3Calls atomic.Int32
	mu         sync.Mutex
	inputs     []string
	outputs    []string
}

func (m *mockTranscoder) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	if m.probeErr != nil {
		return nil, m.probeErr
	}
	if m.info != nil {
		return m.info, nil
	}
	return &ffmpeg.MediaInfo{FormatName: "mov,mp4,m4a,3gp,3g2,mj2", HasAudio: true, AudioCodec: "aac"}, nil
}

func (m *mockTranscoder) ToMP3(ctx context.Context, inputPath, outputPath string) (string, error) {
	m.toMP3Calls.Add(1)
	m.mu.Lock()
	m.inputs = append(m.inputs, inputPath)
	m.outputs = append(m.outputs, outputPath)
	m.mu.Unlock()

	if m.toMP3Err != nil {
		return "", m.toMP3Err
	}
	if err := os.WriteFile(outputPath, []byte("ID3mp3"), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

// lowSpaceScratch reports a fixed amount of free space.
type lowSpaceScratch struct {
	*repository.FilesystemScratch
	free int64
}

func (s *lowSpaceScratch) FreeBytes() (int64, error) {
	return s.free, nil
}

// newTestScratch creates a scratch root in a temp dir.
func newTestScratch(t *testing.T) *repository.FilesystemScratch {
	t.Helper()
	scratch, err := repository.NewFilesystemScratch(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatalf("NewFilesystemScratch failed: %v", err)
	}
	return scratch
}

// assertScratchEmpty fails if any job workspace remains under root.
func assertScratchEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read scratch root: %v", err)
	}
	for _, e := range entries {
		t.Errorf("leftover in scratch root: %s", e.Name())
	}
}
