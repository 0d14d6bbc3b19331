package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/iconidentify/tubegrabba/internal/domain"
)

// waitDelay bounds how long Wait blocks on pipes after the tool is killed.
const waitDelay = 2 * time.Second

// unavailableMarkers are yt-dlp stderr fragments meaning the format id is not
// offered for the video.
var unavailableMarkers = []string{
	"Requested format is not available",
	"requested format not available",
}

// YtDlpConfig configures the yt-dlp backend.
type YtDlpConfig struct {
	BinaryPath string
}

// YtDlp shells out to the yt-dlp binary.
type YtDlp struct {
	binary string
	logger *slog.Logger
}

// NewYtDlp creates a yt-dlp backend. The binary name is resolved through PATH.
func NewYtDlp(cfg YtDlpConfig, logger *slog.Logger) (*YtDlp, error) {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "yt-dlp"
	}
	path, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp not found: %w", err)
	}
	return &YtDlp{binary: path, logger: logger}, nil
}

// Name implements Extractor.
func (y *YtDlp) Name() string { return "yt-dlp" }

// ytdlpFormat is one entry of the "formats" array in yt-dlp's -J output.
type ytdlpFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	VCodec         *string  `json:"vcodec"`
	ACodec         *string  `json:"acodec"`
	FormatNote     string   `json:"format_note"`
	Height         *int     `json:"height"`
	ABR            *float64 `json:"abr"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *int64   `json:"filesize_approx"`
}

// ytdlpInfo is the subset of yt-dlp's -J output the broker reads.
type ytdlpInfo struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Channel      string        `json:"channel"`
	Uploader     string        `json:"uploader"`
	Tags         []string      `json:"tags"`
	Categories   []string      `json:"categories"`
	ViewCount    *int64        `json:"view_count"`
	LikeCount    *int64        `json:"like_count"`
	CommentCount *int64        `json:"comment_count"`
	Duration     *float64      `json:"duration"`
	UploadDate   string        `json:"upload_date"`
	Thumbnail    string        `json:"thumbnail"`
	Formats      []ytdlpFormat `json:"formats"`
}

// Catalog implements Extractor.
func (y *YtDlp) Catalog(ctx context.Context, videoID domain.VideoID) ([]domain.CatalogEntry, error) {
	info, err := y.dumpJSON(ctx, videoID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.CatalogEntry, 0, len(info.Formats))
	for _, f := range info.Formats {
		entries = append(entries, f.entry())
	}
	return entries, nil
}

// Metadata implements Extractor.
func (y *YtDlp) Metadata(ctx context.Context, videoID domain.VideoID) (*domain.VideoMetadata, error) {
	info, err := y.dumpJSON(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return info.metadata(videoID), nil
}

// Fetch implements Extractor.
func (y *YtDlp) Fetch(ctx context.Context, videoID domain.VideoID, formatID domain.FormatID, destBase string) (string, error) {
	if !plainFormatID(formatID) {
		return "", fmt.Errorf("format %q is a selector, not a format id: %w", formatID, domain.ErrInvalidFormat)
	}

	stdout, err := y.run(ctx,
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--no-part",
		"--no-mtime",
		"-f", formatID.String(),
		"-o", destBase+".%(ext)s",
		"--print", "after_move:filepath",
		videoID.WatchURL(),
	)
	if err != nil {
		return "", err
	}

	if path := lastLine(stdout); path != "" && strings.HasPrefix(path, destBase) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	// Older yt-dlp releases ignore --print after_move.
	matches, err := filepath.Glob(destBase + ".*")
	if err != nil {
		return "", fmt.Errorf("locate output: %w", err)
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("yt-dlp left %d output files for %s", len(matches), filepath.Base(destBase))
	}
	return matches[0], nil
}

func (y *YtDlp) dumpJSON(ctx context.Context, videoID domain.VideoID) (*ytdlpInfo, error) {
	stdout, err := y.run(ctx,
		"-J",
		"--no-playlist",
		"--no-warnings",
		"--skip-download",
		videoID.WatchURL(),
	)
	if err != nil {
		return nil, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// run executes yt-dlp and returns stdout. On failure the error carries the
// tail of stderr; a context error is wrapped so callers can match it.
func (y *YtDlp) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, y.binary, args...)
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp: %w", ctx.Err())
		}
		msg := tail(stderr.String(), 300)
		y.logger.Debug("yt-dlp failed",
			"args", args,
			"error", err,
			"stderr", msg,
			"duration", time.Since(start),
		)
		if formatUnavailable(msg) {
			return nil, fmt.Errorf("yt-dlp: %w", domain.ErrInvalidFormat)
		}
		return nil, fmt.Errorf("yt-dlp: %w: %s", err, msg)
	}

	y.logger.Debug("yt-dlp finished", "duration", time.Since(start))
	return stdout.Bytes(), nil
}

// entry maps a yt-dlp format to a catalog entry. A missing codec field counts
// as present; only an explicit "none" marks the stream as absent.
func (f ytdlpFormat) entry() domain.CatalogEntry {
	e := domain.CatalogEntry{
		FormatID: domain.FormatID(f.FormatID),
		Ext:      f.Ext,
		HasVideo: f.VCodec == nil || *f.VCodec != "none",
		HasAudio: f.ACodec == nil || *f.ACodec != "none",
		Label:    f.label(),
	}
	switch {
	case f.Filesize != nil:
		e.Filesize = *f.Filesize
	case f.FilesizeApprox != nil:
		e.Filesize = *f.FilesizeApprox
	}
	return e
}

func (f ytdlpFormat) label() string {
	if note := strings.TrimSpace(f.FormatNote); note != "" {
		return note
	}
	if f.Height != nil && *f.Height > 0 {
		return fmt.Sprintf("%dp", *f.Height)
	}
	if f.ABR != nil && *f.ABR > 0 {
		return fmt.Sprintf("%.0fkbps", *f.ABR)
	}
	return ""
}

func (i *ytdlpInfo) metadata(videoID domain.VideoID) *domain.VideoMetadata {
	m := &domain.VideoMetadata{
		ID:           videoID,
		Title:        i.Title,
		Description:  i.Description,
		Channel:      i.Channel,
		Tags:         i.Tags,
		Categories:   i.Categories,
		ViewCount:    i.ViewCount,
		LikeCount:    i.LikeCount,
		CommentCount: i.CommentCount,
		UploadDate:   formatUploadDate(i.UploadDate),
		ThumbnailURL: i.Thumbnail,
	}
	if m.Channel == "" {
		m.Channel = i.Uploader
	}
	if i.Duration != nil {
		m.Duration = int64(*i.Duration)
	}
	return m
}

// formatUploadDate turns yt-dlp's YYYYMMDD into YYYY-MM-DD.
func formatUploadDate(s string) string {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

// plainFormatID rejects yt-dlp selector syntax so Fetch downloads exactly one
// catalog entry and never merges streams.
func plainFormatID(id domain.FormatID) bool {
	s := id.String()
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, "+/,[]()* \t\n")
}

func formatUnavailable(stderr string) bool {
	for _, m := range unavailableMarkers {
		if strings.Contains(stderr, m) {
			return true
		}
	}
	return false
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

var _ Extractor = (*YtDlp)(nil)
