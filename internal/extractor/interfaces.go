package extractor

import (
	"context"

	"github.com/iconidentify/tubegrabba/internal/domain"
)

// Extractor fetches format catalogs, metadata, and media for a video.
// Format identifiers follow the backend's own scheme.
type Extractor interface {
	// Name identifies the backend in logs.
	Name() string

	// Catalog returns every format the tool reports for the video.
	Catalog(ctx context.Context, videoID domain.VideoID) ([]domain.CatalogEntry, error)

	// Fetch downloads exactly formatID to destBase plus an extension chosen by
	// the tool and returns the path written. Errors wrap domain.ErrInvalidFormat
	// when the tool does not offer formatID for the video.
	Fetch(ctx context.Context, videoID domain.VideoID, formatID domain.FormatID, destBase string) (string, error)

	// Metadata returns descriptive fields for export.
	Metadata(ctx context.Context, videoID domain.VideoID) (*domain.VideoMetadata, error)
}
