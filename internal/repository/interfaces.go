package repository

import (
	"context"

	"github.com/iconidentify/tubegrabba/internal/domain"
)

// JobRepository records job outcomes. It is written by the download path and
// read only by health and stats endpoints.
type JobRepository interface {
	// Record stores a new job.
	Record(ctx context.Context, job *domain.Job) error

	// Update replaces the stored state of an existing job.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// Stats returns counts per status.
	Stats(ctx context.Context) (*JobStats, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// JobStats contains job history statistics.
type JobStats struct {
	Processing int   `json:"processing"`
	Streaming  int   `json:"streaming"`
	Completed  int   `json:"completed"`
	Failed     int   `json:"failed"`
	BytesSent  int64 `json:"bytes_sent"`
}

// Scratch allocates per-job temporary workspaces.
type Scratch interface {
	// Allocate creates a workspace whose directory name embeds token.
	// It fails if the directory already exists.
	Allocate(token string) (*Workspace, error)

	// FreeBytes returns the space available to unprivileged writers under the root.
	FreeBytes() (int64, error)

	// Writable checks that a file can be created under the root.
	Writable() error
}
