package service

import (
	"context"

	"github.com/iconidentify/tubegrabba/pkg/ffmpeg"
)

// Transcoder inspects and converts media files.
type Transcoder interface {
	// Probe returns stream metadata for the file at path.
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)

	// ToMP3 writes the audio of inputPath as mp3 to outputPath and returns the
	// path written. The input is never removed.
	ToMP3(ctx context.Context, inputPath, outputPath string) (string, error)
}
