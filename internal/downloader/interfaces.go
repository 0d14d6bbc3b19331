package downloader

import (
	"context"
	"io"
)

// Downloader fetches remote resources over HTTP.
type Downloader interface {
	// Download fetches url. Caller is responsible for closing the body.
	Download(ctx context.Context, url string) (*Response, error)
}

// Response is a successful download.
type Response struct {
	Body        io.ReadCloser
	Size        int64 // -1 when unknown
	ContentType string
}
