package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/iconidentify/tubegrabba/internal/config"
	"github.com/iconidentify/tubegrabba/internal/domain"
	"github.com/iconidentify/tubegrabba/internal/downloader"
	"github.com/iconidentify/tubegrabba/internal/extractor"
	"github.com/iconidentify/tubegrabba/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	videoID := flag.String("video", "", "Video ID to export (required)")
	dest := flag.String("dest", ".", "Destination directory")
	format := flag.String("format", service.MetadataText, "Metadata format: txt, json or yaml")
	thumbnail := flag.Bool("thumbnail", false, "Also export the video thumbnail")
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tubegrabba-export %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if *videoID == "" {
		fmt.Fprintln(os.Stderr, "Error: --video flag is required")
		fmt.Fprintln(os.Stderr, "Usage: tubegrabba-export --video dQw4w9WgXcQ [--dest dir] [--format json] [--thumbnail]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*dest, 0755); err != nil {
		logger.Error("failed to create destination", "error", err)
		os.Exit(1)
	}

	ext, err := extractor.New(cfg.Extractor, logger)
	if err != nil {
		logger.Error("failed to initialize extractor", "error", err)
		os.Exit(1)
	}
	exportSvc := service.NewExportService(ext, downloader.NewHTTPDownloader(cfg.Download, logger), cfg.Extractor.MetadataTimeout, logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nExport cancelled")
		cancel()
	}()

	id := domain.VideoID(*videoID)

	file, err := exportSvc.Metadata(ctx, id, *format)
	if err != nil {
		exitOnError(ctx, logger, "metadata export failed", err)
	}
	metaPath := filepath.Join(*dest, file.Filename)
	if err := os.WriteFile(metaPath, file.Content, 0644); err != nil {
		logger.Error("failed to write metadata", "error", err)
		os.Exit(1)
	}
	fmt.Println(metaPath)

	if *thumbnail {
		thumb, err := exportSvc.Thumbnail(ctx, id)
		if err != nil {
			exitOnError(ctx, logger, "thumbnail export failed", err)
		}
		thumbPath := filepath.Join(*dest, thumb.Filename)
		if err := writeStream(thumbPath, thumb.Body); err != nil {
			os.Remove(thumbPath)
			logger.Error("failed to write thumbnail", "error", err)
			os.Exit(1)
		}
		fmt.Println(thumbPath)
	}
}

func writeStream(path string, body io.ReadCloser) error {
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exitOnError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if ctx.Err() != nil {
		logger.Info("export was cancelled")
		os.Exit(130) // Cancelled by signal
	}
	logger.Error(msg, "error", err)
	os.Exit(1)
}
