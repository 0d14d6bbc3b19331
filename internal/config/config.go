package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Extractor backends.
const (
	BackendYtDlp  = "ytdlp"
	BackendNative = "native"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Download  DownloadConfig  `yaml:"download"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	CORSOrigins  []string      `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
}

// StorageConfig holds scratch space configuration.
type StorageConfig struct {
	TempPath      string        `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH"`
	MinFreeBytes  int64         `yaml:"min_free_bytes" envconfig:"STORAGE_MIN_FREE_BYTES"`
	OrphanMaxAge  time.Duration `yaml:"orphan_max_age" envconfig:"STORAGE_ORPHAN_MAX_AGE"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"STORAGE_SWEEP_INTERVAL"`
}

// ExtractorConfig selects and configures the media extraction tool.
type ExtractorConfig struct {
	Backend         string        `yaml:"backend" envconfig:"EXTRACTOR_BACKEND"`
	YtDlpPath       string        `yaml:"ytdlp_path" envconfig:"YTDLP_PATH"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"EXTRACTOR_TIMEOUT"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout" envconfig:"EXTRACTOR_METADATA_TIMEOUT"`
}

// TranscodeConfig holds ffmpeg configuration.
type TranscodeConfig struct {
	FFmpegPath  string        `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	FFprobePath string        `yaml:"ffprobe_path" envconfig:"FFPROBE_PATH"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TRANSCODE_TIMEOUT"`
	Bitrate     string        `yaml:"bitrate" envconfig:"TRANSCODE_BITRATE"`
}

// DownloadConfig holds thumbnail fetch configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY"`
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT"`
}

// HistoryConfig holds job history configuration. An empty SQLitePath keeps
// history in memory, where only the last Retain finished jobs stay retrievable.
type HistoryConfig struct {
	SQLitePath string `yaml:"sqlite_path" envconfig:"HISTORY_SQLITE_PATH"`
	Retain     int    `yaml:"retain" envconfig:"HISTORY_RETAIN"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
}

// Defaults returns the configuration used when neither file nor environment
// sets a value.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Minute,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{
			TempPath:      filepath.Join(os.TempDir(), "tubegrabba"),
			MinFreeBytes:  512 << 20,
			OrphanMaxAge:  6 * time.Hour,
			SweepInterval: 15 * time.Minute,
		},
		Extractor: ExtractorConfig{
			Backend:         BackendYtDlp,
			YtDlpPath:       "yt-dlp",
			Timeout:         10 * time.Minute,
			MetadataTimeout: 45 * time.Second,
		},
		Transcode: TranscodeConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			Timeout:     10 * time.Minute,
			Bitrate:     "192k",
		},
		Download: DownloadConfig{
			Timeout:       30 * time.Second,
			ReadTimeout:   30 * time.Second,
			RetryDelay:    time.Second,
			MaxRetryDelay: 10 * time.Second,
			MaxAttempts:   3,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		History: HistoryConfig{
			Retain: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from defaults, an optional YAML file, an optional
// .env file, and environment variables, in increasing precedence.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.TempPath == "" {
		return fmt.Errorf("STORAGE_TEMP_PATH is required")
	}
	switch c.Extractor.Backend {
	case BackendYtDlp, BackendNative:
	default:
		return fmt.Errorf("EXTRACTOR_BACKEND must be %q or %q, got %q", BackendYtDlp, BackendNative, c.Extractor.Backend)
	}
	if c.Extractor.Backend == BackendYtDlp && c.Extractor.YtDlpPath == "" {
		return fmt.Errorf("YTDLP_PATH is required for the ytdlp backend")
	}
	if c.Transcode.FFmpegPath == "" || c.Transcode.FFprobePath == "" {
		return fmt.Errorf("FFMPEG_PATH and FFPROBE_PATH are required")
	}
	if c.Extractor.Timeout <= 0 || c.Transcode.Timeout <= 0 {
		return fmt.Errorf("extractor and transcode timeouts must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured level name to a slog.Level.
func (c *LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Level)
	}
}
