package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/iconidentify/tubegrabba/internal/domain"
)

// videoSource is the part of *youtube.Client the native backend uses.
type videoSource interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// Native extracts in-process with github.com/kkdai/youtube. Its format ids are
// itag numbers rendered in decimal.
type Native struct {
	client videoSource
	logger *slog.Logger
}

// NewNative creates a native backend. A nil httpClient uses a client without
// an overall timeout; cancellation comes from the request context.
func NewNative(httpClient *http.Client, logger *slog.Logger) *Native {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Native{
		client: &youtube.Client{HTTPClient: httpClient},
		logger: logger,
	}
}

// Name implements Extractor.
func (n *Native) Name() string { return "native" }

// Catalog implements Extractor.
func (n *Native) Catalog(ctx context.Context, videoID domain.VideoID) ([]domain.CatalogEntry, error) {
	video, err := n.client.GetVideoContext(ctx, videoID.String())
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return catalogFromFormats(video.Formats), nil
}

// Metadata implements Extractor.
func (n *Native) Metadata(ctx context.Context, videoID domain.VideoID) (*domain.VideoMetadata, error) {
	video, err := n.client.GetVideoContext(ctx, videoID.String())
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return metadataFromVideo(videoID, video), nil
}

// Fetch implements Extractor.
func (n *Native) Fetch(ctx context.Context, videoID domain.VideoID, formatID domain.FormatID, destBase string) (string, error) {
	itag, err := strconv.Atoi(formatID.String())
	if err != nil {
		return "", fmt.Errorf("format %q is not an itag: %w", formatID, domain.ErrInvalidFormat)
	}

	video, err := n.client.GetVideoContext(ctx, videoID.String())
	if err != nil {
		return "", fmt.Errorf("get video: %w", err)
	}

	offered := video.Formats.Itag(itag)
	if len(offered) == 0 {
		return "", fmt.Errorf("itag %d: %w", itag, domain.ErrInvalidFormat)
	}
	format := &offered[0]

	stream, _, err := n.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("get stream: %w", err)
	}
	defer stream.Close()

	path := destBase + "." + extFromMime(format.MimeType)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output: %w: %w", domain.ErrIOFailed, err)
	}

	start := time.Now()
	out := &fileWriter{f: file}
	written, err := io.Copy(out, stream)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		out.err = closeErr
		err = closeErr
	}
	if err != nil {
		// The caller owns destBase's directory and removes it; the path is
		// returned so it can be registered for cleanup.
		if out.err != nil {
			return path, fmt.Errorf("write output: %w: %w", domain.ErrIOFailed, err)
		}
		return path, fmt.Errorf("read stream: %w", err)
	}

	n.logger.Debug("native fetch finished",
		"video_id", videoID,
		"itag", itag,
		"bytes", written,
		"duration", time.Since(start),
	)
	return path, nil
}

// fileWriter remembers the first local write failure so it can be told apart
// from a failure reading the remote stream.
type fileWriter struct {
	f   *os.File
	err error
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil && w.err == nil {
		w.err = err
	}
	return n, err
}

func catalogFromFormats(formats youtube.FormatList) []domain.CatalogEntry {
	entries := make([]domain.CatalogEntry, 0, len(formats))
	for _, f := range formats {
		hasVideo := strings.HasPrefix(f.MimeType, "video/") && (f.Width > 0 || f.QualityLabel != "")
		e := domain.CatalogEntry{
			FormatID: domain.FormatID(strconv.Itoa(f.ItagNo)),
			Ext:      extFromMime(f.MimeType),
			HasVideo: hasVideo,
			HasAudio: f.AudioChannels > 0,
			Filesize: f.ContentLength,
		}
		switch {
		case f.QualityLabel != "":
			e.Label = f.QualityLabel
		case f.Bitrate > 0:
			e.Label = fmt.Sprintf("%dkbps", f.Bitrate/1000)
		}
		entries = append(entries, e)
	}
	return entries
}

// extFromMime maps a stream mime type such as `audio/mp4; codecs="mp4a.40.2"`
// to a file extension.
func extFromMime(mimeType string) string {
	media, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "mp4"
	}
	switch media {
	case "audio/mp4":
		return "m4a"
	case "audio/webm", "video/webm":
		return "webm"
	case "video/3gpp":
		return "3gp"
	default:
		return "mp4"
	}
}

func metadataFromVideo(videoID domain.VideoID, video *youtube.Video) *domain.VideoMetadata {
	views := int64(video.Views)
	m := &domain.VideoMetadata{
		ID:          videoID,
		Title:       video.Title,
		Description: video.Description,
		Channel:     video.Author,
		ViewCount:   &views,
		Duration:    int64(video.Duration / time.Second),
	}
	if !video.PublishDate.IsZero() {
		m.UploadDate = video.PublishDate.Format("2006-01-02")
	}

	var best uint
	for _, t := range video.Thumbnails {
		if m.ThumbnailURL == "" || t.Width > best {
			m.ThumbnailURL = t.URL
			best = t.Width
		}
	}
	return m
}

var _ Extractor = (*Native)(nil)
