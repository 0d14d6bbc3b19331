package downloader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iconidentify/tubegrabba/internal/config"
	"github.com/iconidentify/tubegrabba/internal/domain"
)

func testConfig() config.DownloadConfig {
	return config.DownloadConfig{
		Timeout:       5 * time.Second,
		ReadTimeout:   5 * time.Second,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 100 * time.Millisecond,
		MaxAttempts:   3,
		UserAgent:     "test-agent",
	}
}

func newTestDownloader(cfg config.DownloadConfig) *HTTPDownloader {
	return NewHTTPDownloader(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewHTTPDownloader(t *testing.T) {
	dl := newTestDownloader(testConfig())

	if dl == nil {
		t.Fatal("downloader should not be nil")
	}
	if dl.userAgent != "test-agent" {
		t.Errorf("userAgent = %q, want %q", dl.userAgent, "test-agent")
	}
	if dl.retry.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", dl.retry.MaxAttempts)
	}
}

func TestHTTPDownloader_Download_Success(t *testing.T) {
	content := []byte("jpeg bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q, want %q", ua, "test-agent")
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(content)
	}))
	defer server.Close()

	resp, err := newTestDownloader(testConfig()).Download(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", resp.Size, len(content))
	}
	if resp.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q", resp.ContentType)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != string(content) {
		t.Errorf("body = %q", data)
	}
}

func TestHTTPDownloader_Download_NoRetry(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, domain.ErrNotFound},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"unauthorized", http.StatusUnauthorized, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestDownloader(testConfig()).Download(context.Background(), server.URL)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, want 1", calls.Load())
			}
		})
	}
}

func TestHTTPDownloader_Download_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write([]byte("ok"))
		}
	}))
	defer server.Close()

	resp, err := newTestDownloader(testConfig()).Download(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestHTTPDownloader_Download_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestDownloader(testConfig()).Download(context.Background(), server.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Errorf("err = %v, want StatusError 502", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestHTTPDownloader_Download_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	if _, err := newTestDownloader(testConfig()).Download(context.Background(), server.URL); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestHTTPDownloader_Download_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RetryDelay = time.Second
	cfg.MaxRetryDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := newTestDownloader(cfg).Download(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want Canceled", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Error("retry wait should stop on cancellation")
	}
}

func TestHTTPDownloader_Download_NetworkError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1

	_, err := newTestDownloader(cfg).Download(context.Background(), "http://127.0.0.1:1/thumb.jpg")
	if err == nil {
		t.Error("expected network error")
	}
}

func TestHTTPDownloader_Download_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond

	resp, err := newTestDownloader(cfg).Download(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer resp.Body.Close()

	start := time.Now()
	_, err = io.ReadAll(resp.Body)
	if err == nil {
		t.Error("expected error from stalled body")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("stalled body was not cancelled")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", ErrRateLimited, true},
		{"server error", &StatusError{Code: 500}, true},
		{"client error", &StatusError{Code: 400}, false},
		{"not found", domain.ErrNotFound, false},
		{"forbidden", ErrForbidden, false},
		{"canceled", context.Canceled, false},
		{"network", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryFetch_ZeroAttempts(t *testing.T) {
	calls := 0
	_, attempts, err := retryFetch(context.Background(), Backoff{}, func(int) (*Response, error) {
		calls++
		return nil, errors.New("fail")
	}, func(error) bool { return true })

	if err == nil {
		t.Error("expected error")
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1", calls, attempts)
	}
}

func TestRetryFetch_StopsOnPermanentError(t *testing.T) {
	var seen []int
	_, attempts, err := retryFetch(context.Background(), Backoff{MaxAttempts: 5}, func(attempt int) (*Response, error) {
		seen = append(seen, attempt)
		if attempt < 2 {
			return nil, ErrRateLimited
		}
		return nil, ErrForbidden
	}, isRetryableError)

	if !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if attempts != 2 || len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("attempts = %d, seen = %v, want 2 attempts numbered 1 and 2", attempts, seen)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	flat := Backoff{InitialDelay: 50 * time.Millisecond}
	if got := flat.Delay(3); got != 50*time.Millisecond {
		t.Errorf("Delay with no factor = %v, want 50ms", got)
	}
}
