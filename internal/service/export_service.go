package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iconidentify/tubegrabba/internal/domain"
	"github.com/iconidentify/tubegrabba/internal/downloader"
	"github.com/iconidentify/tubegrabba/internal/extractor"
)

// Metadata export formats.
const (
	MetadataText = "txt"
	MetadataJSON = "json"
	MetadataYAML = "yaml"
)

// notAvailable stands in for missing metadata in text exports.
const notAvailable = "N/A"

// ExportService renders video metadata and fetches thumbnails as flat files.
type ExportService struct {
	extractor  extractor.Extractor
	downloader downloader.Downloader
	timeout    time.Duration
	logger     *slog.Logger
}

// NewExportService creates a new export service. Metadata lookups are bounded by timeout.
func NewExportService(ext extractor.Extractor, dl downloader.Downloader, timeout time.Duration, logger *slog.Logger) *ExportService {
	return &ExportService{
		extractor:  ext,
		downloader: dl,
		timeout:    timeout,
		logger:     logger,
	}
}

// File is an exported file held in memory.
type File struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Stream is an exported file read from a remote source. Body must be closed.
type Stream struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
}

// Metadata renders the video's metadata in the requested format. An empty
// format means txt.
func (s *ExportService) Metadata(ctx context.Context, videoID domain.VideoID, format string) (*File, error) {
	if err := videoID.Validate(); err != nil {
		return nil, domain.NewBrokerError(videoID, "export metadata", err, errors.New("video id is required"))
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = MetadataText
	}
	if format == "yml" {
		format = MetadataYAML
	}

	var render func(*domain.VideoMetadata) ([]byte, error)
	var contentType string
	switch format {
	case MetadataText:
		render, contentType = renderText, "text/plain; charset=utf-8"
	case MetadataJSON:
		render, contentType = renderJSON, "application/json"
	case MetadataYAML:
		render, contentType = renderYAML, "application/yaml"
	default:
		return nil, domain.NewBrokerError(videoID, "export metadata", domain.ErrInvalidInput,
			fmt.Errorf("unsupported metadata format %q", format))
	}

	meta, err := s.lookup(ctx, videoID)
	if err != nil {
		return nil, domain.NewBrokerError(videoID, "export metadata", domain.ErrExtractionFailed, err)
	}

	content, err := render(meta)
	if err != nil {
		return nil, domain.NewBrokerError(videoID, "export metadata", domain.ErrIOFailed, err)
	}

	return &File{
		Content:     content,
		ContentType: contentType,
		Filename:    sanitizeFilename("metadata-" + videoID.String() + "." + format),
	}, nil
}

// Thumbnail fetches the video's largest thumbnail.
func (s *ExportService) Thumbnail(ctx context.Context, videoID domain.VideoID) (*Stream, error) {
	if err := videoID.Validate(); err != nil {
		return nil, domain.NewBrokerError(videoID, "export thumbnail", err, errors.New("video id is required"))
	}

	meta, err := s.lookup(ctx, videoID)
	if err != nil {
		return nil, domain.NewBrokerError(videoID, "export thumbnail", domain.ErrExtractionFailed, err)
	}
	if meta.ThumbnailURL == "" {
		return nil, domain.NewBrokerError(videoID, "export thumbnail", domain.ErrNotFound, errors.New("video has no thumbnail"))
	}

	resp, err := s.downloader.Download(ctx, meta.ThumbnailURL)
	if err != nil {
		return nil, domain.NewBrokerError(videoID, "export thumbnail", domain.ErrIOFailed, err)
	}

	ext := thumbnailExt(resp.ContentType, meta.ThumbnailURL)
	contentType := resp.ContentType
	if contentType == "" {
		contentType = ContentType(ext)
	}

	s.logger.Info("thumbnail fetched", "video_id", videoID, "size", resp.Size)

	return &Stream{
		Body:        resp.Body,
		Size:        resp.Size,
		ContentType: contentType,
		Filename:    sanitizeFilename("thumbnail-" + videoID.String() + "." + ext),
	}, nil
}

func (s *ExportService) lookup(ctx context.Context, videoID domain.VideoID) (*domain.VideoMetadata, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.extractor.Metadata(ctx, videoID)
}

func renderJSON(m *domain.VideoMetadata) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func renderYAML(m *domain.VideoMetadata) ([]byte, error) {
	return yaml.Marshal(m)
}

func renderText(m *domain.VideoMetadata) ([]byte, error) {
	var b bytes.Buffer
	field := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			value = notAvailable
		}
		fmt.Fprintf(&b, "%s: %s\n", name, value)
	}

	field("Title", m.Title)
	field("Description", m.Description)
	field("Views", formatCount(m.ViewCount))
	field("Likes", formatCount(m.LikeCount))
	field("Comments", formatCount(m.CommentCount))
	field("Channel", m.Channel)
	field("Tags", strings.Join(m.Tags, ", "))
	field("Categories", strings.Join(m.Categories, ", "))
	field("Length", FormatDuration(m.Duration))
	field("Published At", m.UploadDate)
	return b.Bytes(), nil
}

func formatCount(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

// FormatDuration renders seconds as "1 hour(s) 30 minute(s) 5 second(s)",
// omitting zero parts. Zero renders as N/A.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return notAvailable
	}
	h, m, sec := seconds/3600, seconds%3600/60, seconds%60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%d hour(s)", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%d minute(s)", m))
	}
	if sec > 0 {
		parts = append(parts, fmt.Sprintf("%d second(s)", sec))
	}
	return strings.Join(parts, " ")
}

func thumbnailExt(contentType, url string) string {
	switch {
	case strings.HasPrefix(contentType, "image/webp"):
		return "webp"
	case strings.HasPrefix(contentType, "image/png"):
		return "png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return "jpg"
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(url), ".")); ext {
	case "jpg", "jpeg":
		return "jpg"
	case "png", "webp":
		return ext
	default:
		return "jpg"
	}
}
