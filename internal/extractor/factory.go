package extractor

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iconidentify/tubegrabba/internal/config"
)

// New creates the extractor selected by cfg.Backend.
func New(cfg config.ExtractorConfig, logger *slog.Logger) (Extractor, error) {
	switch cfg.Backend {
	case config.BackendYtDlp, "":
		return NewYtDlp(YtDlpConfig{BinaryPath: cfg.YtDlpPath}, logger)
	case config.BackendNative:
		return NewNative(&http.Client{}, logger), nil
	default:
		return nil, fmt.Errorf("unknown extractor backend %q", cfg.Backend)
	}
}
