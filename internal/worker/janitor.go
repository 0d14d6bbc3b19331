package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when the janitor doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("janitor shutdown timed out")

// Sweeper removes stale workspaces.
type Sweeper interface {
	Sweep(maxAge time.Duration, now time.Time) ([]string, error)
}

// Config holds janitor configuration.
type Config struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// Janitor periodically removes scratch workspaces orphaned by a crash or a
// killed process. Live jobs clean up after themselves.
type Janitor struct {
	interval time.Duration
	maxAge   time.Duration
	sweeper  Sweeper
	logger   *slog.Logger
	now      func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJanitor creates a new janitor.
func NewJanitor(cfg Config, sweeper Sweeper, logger *slog.Logger) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 6 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Janitor{
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		sweeper:  sweeper,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start sweeps once immediately, then on every interval.
func (j *Janitor) Start() {
	j.logger.Info("starting janitor", "interval", j.interval, "max_age", j.maxAge)

	j.wg.Add(1)
	go j.run()
}

// Stop stops the janitor and waits for an in-flight sweep.
func (j *Janitor) Stop(timeout time.Duration) error {
	j.logger.Info("stopping janitor")
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("janitor stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (j *Janitor) run() {
	defer j.wg.Done()

	j.SweepOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.SweepOnce()
		}
	}
}

// SweepOnce runs a single sweep and returns the number of workspaces removed.
func (j *Janitor) SweepOnce() int {
	removed, err := j.sweeper.Sweep(j.maxAge, j.now())
	if err != nil {
		j.logger.Error("sweep failed", "error", err, "removed", len(removed))
	}
	for _, dir := range removed {
		j.logger.Warn("removed orphaned workspace", "dir", dir)
	}
	return len(removed)
}
