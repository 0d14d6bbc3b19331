package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoOutput is returned when ffmpeg exits cleanly but leaves no usable file.
var ErrNoOutput = errors.New("ffmpeg produced no output")

// waitDelay bounds how long Wait blocks on pipes after the process is killed.
const waitDelay = 2 * time.Second

// Config configures the processor.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	Bitrate     string // mp3 bitrate (default: "192k")
}

// Processor wraps the ffmpeg and ffprobe binaries.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	bitrate     string
}

// NewProcessor creates a new processor. Binary names are resolved through PATH.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "192k"
	}

	ffmpegPath, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := exec.LookPath(cfg.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &Processor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		bitrate:     cfg.Bitrate,
	}, nil
}

// MediaInfo contains stream metadata about a media file.
type MediaInfo struct {
	FormatName string // container as reported by ffprobe, e.g. "mov,mp4,m4a,3gp,3g2,mj2"
	Duration   float64
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	AudioCodec string
	FileSize   int64
}

// IsMP3 reports whether the file is already an audio-only mp3.
func (m *MediaInfo) IsMP3() bool {
	return !m.HasVideo && m.HasAudio && m.AudioCodec == "mp3" && strings.Contains(m.FormatName, "mp3")
}

// Probe extracts stream metadata from a media file.
func (p *Processor) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	cmd.WaitDelay = waitDelay

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	type ffprobeFormat struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	}
	type ffprobeStream struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		// Cover art in audio files shows up as a video stream with this flag.
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	}
	type ffprobeOutput struct {
		Format  ffprobeFormat   `json:"format"`
		Streams []ffprobeStream `json:"streams"`
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{
		FormatName: parsed.Format.FormatName,
		FileSize:   stat.Size(),
	}
	if parsed.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		case "video":
			if s.Disposition.AttachedPic == 1 {
				continue
			}
			info.HasVideo = true
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
		}
	}

	return info, nil
}

// ToMP3 converts the audio track of inputPath into an mp3 at outputPath.
// The input file is never modified or removed.
func (p *Processor) ToMP3(ctx context.Context, inputPath, outputPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	args := []string{
		"-nostdin",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn", // No video
		"-acodec", "libmp3lame",
		"-b:a", p.bitrate,
		"-f", "mp3",
		"-y", outputPath,
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("convert to mp3: %w", ctx.Err())
		}
		return "", fmt.Errorf("convert to mp3: %w: %s", err, tail(stderr.String(), 300))
	}

	stat, err := os.Stat(outputPath)
	if err != nil || stat.Size() == 0 {
		return "", ErrNoOutput
	}

	return outputPath, nil
}

// Version returns the first line of `ffmpeg -version`.
func (p *Processor) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
