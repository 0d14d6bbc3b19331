package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iconidentify/tubegrabba/internal/domain"
	"github.com/iconidentify/tubegrabba/internal/extractor"
)

// FormatService lists the downloadable formats of a video.
type FormatService struct {
	extractor extractor.Extractor
	timeout   time.Duration
	logger    *slog.Logger
}

// NewFormatService creates a new format service. Each resolution is bounded by timeout.
func NewFormatService(ext extractor.Extractor, timeout time.Duration, logger *slog.Logger) *FormatService {
	return &FormatService{
		extractor: ext,
		timeout:   timeout,
		logger:    logger,
	}
}

// Resolve asks the extractor for the video's catalog once and partitions it.
// Nothing is cached; every call reflects the tool's current answer.
func (s *FormatService) Resolve(ctx context.Context, videoID domain.VideoID) (*domain.FormatSet, error) {
	if err := videoID.Validate(); err != nil {
		return nil, domain.NewBrokerError(videoID, "resolve", err, errors.New("video id is required"))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	entries, err := s.extractor.Catalog(ctx, videoID)
	if err != nil {
		return nil, domain.NewBrokerError(videoID, "resolve", domain.ErrExtractionFailed, err)
	}

	set := domain.PartitionCatalog(entries)

	s.logger.Info("formats resolved",
		"video_id", videoID,
		"extractor", s.extractor.Name(),
		"catalog", len(entries),
		"video_formats", len(set.VideoFormats),
		"audio_formats", len(set.AudioFormats),
		"duration", time.Since(start),
	)

	return &set, nil
}
