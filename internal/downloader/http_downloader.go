package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/iconidentify/tubegrabba/internal/config"
	"github.com/iconidentify/tubegrabba/internal/domain"
)

var (
	// ErrForbidden is returned for 401 and 403 responses. It is not retried.
	ErrForbidden = errors.New("access denied by remote server")

	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("rate limited by remote server")
)

// StatusError is returned for unexpected response codes.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// HTTPDownloader implements Downloader using HTTP requests.
type HTTPDownloader struct {
	client      *http.Client
	userAgent   string
	readTimeout time.Duration
	retry       Backoff
	logger      *slog.Logger
}

// NewHTTPDownloader creates a new HTTP downloader.
func NewHTTPDownloader(cfg config.DownloadConfig, logger *slog.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		// No overall timeout; the body is guarded by an idle timer instead
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
		userAgent:   cfg.UserAgent,
		readTimeout: cfg.ReadTimeout,
		retry: Backoff{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     cfg.MaxRetryDelay,
			Factor:       2.0,
		},
		logger: logger,
	}
}

// Download fetches url with retry on transient failures.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (*Response, error) {
	resp, attempts, err := retryFetch(ctx, d.retry, func(attempt int) (*Response, error) {
		resp, err := d.downloadOnce(ctx, url)
		if err != nil {
			d.logger.Debug("download attempt failed", "attempt", attempt, "error", err)
		}
		return resp, err
	}, isRetryableError)
	if err != nil {
		return nil, fmt.Errorf("download failed after %d attempt(s): %w", attempts, err)
	}
	return resp, nil
}

func (d *HTTPDownloader) downloadOnce(ctx context.Context, url string) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		switch resp.StatusCode {
		case http.StatusNotFound:
			return nil, domain.ErrNotFound
		case http.StatusForbidden, http.StatusUnauthorized:
			return nil, ErrForbidden
		case http.StatusTooManyRequests:
			return nil, ErrRateLimited
		default:
			return nil, &StatusError{Code: resp.StatusCode}
		}
	}

	return &Response{
		Body:        newIdleTimeoutReader(resp.Body, d.readTimeout, cancel),
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, ErrForbidden) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	// Rate limits and network errors
	return true
}

// idleTimeoutReader cancels the request when no data arrives for timeout.
type idleTimeoutReader struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	once    sync.Once
}

func newIdleTimeoutReader(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutReader {
	r := &idleTimeoutReader{body: body, timeout: timeout, cancel: cancel}
	if timeout > 0 {
		r.timer = time.AfterFunc(timeout, cancel)
	}
	return r
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 && r.timer != nil {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (r *idleTimeoutReader) Close() error {
	var err error
	r.once.Do(func() {
		if r.timer != nil {
			r.timer.Stop()
		}
		err = r.body.Close()
		r.cancel()
	})
	return err
}

var _ Downloader = (*HTTPDownloader)(nil)
