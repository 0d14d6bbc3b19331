package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/tubegrabba/internal/api"
	"github.com/iconidentify/tubegrabba/internal/api/handler"
	"github.com/iconidentify/tubegrabba/internal/config"
	"github.com/iconidentify/tubegrabba/internal/downloader"
	"github.com/iconidentify/tubegrabba/internal/extractor"
	"github.com/iconidentify/tubegrabba/internal/repository"
	"github.com/iconidentify/tubegrabba/internal/service"
	"github.com/iconidentify/tubegrabba/internal/worker"
	"github.com/iconidentify/tubegrabba/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tubegrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tubegrabba",
		"version", Version,
		"build_time", BuildTime,
		"extractor", cfg.Extractor.Backend,
	)

	// Initialize dependencies
	scratch, err := repository.NewFilesystemScratch(cfg.Storage.TempPath)
	if err != nil {
		logger.Error("failed to create scratch directory", "error", err)
		os.Exit(1)
	}

	jobs, closeJobs, err := newJobRepository(cfg.History)
	if err != nil {
		logger.Error("failed to open job history", "error", err)
		os.Exit(1)
	}
	defer closeJobs()

	ext, err := extractor.New(cfg.Extractor, logger)
	if err != nil {
		logger.Error("failed to initialize extractor", "error", err)
		os.Exit(1)
	}

	transcoder, err := ffmpeg.NewProcessor(ffmpeg.Config{
		FFmpegPath:  cfg.Transcode.FFmpegPath,
		FFprobePath: cfg.Transcode.FFprobePath,
		Bitrate:     cfg.Transcode.Bitrate,
	})
	if err != nil {
		logger.Error("failed to initialize ffmpeg", "error", err)
		os.Exit(1)
	}

	dl := downloader.NewHTTPDownloader(cfg.Download, logger)

	// Initialize services
	formatSvc := service.NewFormatService(ext, cfg.Extractor.MetadataTimeout, logger)
	downloadSvc := service.NewDownloadService(ext, transcoder, scratch, jobs, service.DownloadConfig{
		ExtractTimeout:   cfg.Extractor.Timeout,
		TranscodeTimeout: cfg.Transcode.Timeout,
		MinFreeBytes:     cfg.Storage.MinFreeBytes,
	}, logger)
	exportSvc := service.NewExportService(ext, dl, cfg.Extractor.MetadataTimeout, logger)

	// Setup router
	router := api.NewRouter(api.Handlers{
		Download: handler.NewDownloadHandler(formatSvc, downloadSvc, logger),
		Export:   handler.NewExportHandler(exportSvc, logger),
		Health:   handler.NewHealthHandler(scratch, jobs, transcoder, logger),
	}, cfg.Server.CORSOrigins, logger)

	// Sweep workspaces left behind by a previous run
	janitor := worker.NewJanitor(worker.Config{
		Interval: cfg.Storage.SweepInterval,
		MaxAge:   cfg.Storage.OrphanMaxAge,
	}, scratch, logger)
	janitor.Start()

	// Setup HTTP server
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown; in-flight downloads clean up as their handlers return
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := janitor.Stop(5 * time.Second); err != nil {
		logger.Error("janitor shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func newJobRepository(cfg config.HistoryConfig) (repository.JobRepository, func(), error) {
	if cfg.SQLitePath == "" {
		return repository.NewInMemoryJobRepository(cfg.Retain), func() {}, nil
	}
	repo, err := repository.NewSQLiteJobRepository(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { repo.Close() }, nil
}
