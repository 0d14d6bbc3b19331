package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/tubegrabba/internal/domain"
)

// SQLiteJobRepository implements JobRepository on a SQLite file so history
// survives restarts.
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository opens (creating if needed) the database at path.
func NewSQLiteJobRepository(path string) (*SQLiteJobRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			format_id TEXT NOT NULL,
			output TEXT NOT NULL,
			status TEXT NOT NULL,
			bytes_sent INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
		CREATE INDEX IF NOT EXISTS idx_jobs_video_id ON jobs(video_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteJobRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteJobRepository) Close() error {
	return r.db.Close()
}

// Record stores a new job.
func (r *SQLiteJobRepository) Record(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, video_id, format_id, output, status, bytes_sent, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(job.ID), string(job.VideoID), string(job.FormatID), string(job.Output), string(job.Status),
		job.BytesSent, job.LastError, job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update replaces the stored state of an existing job.
func (r *SQLiteJobRepository) Update(ctx context.Context, job *domain.Job) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, bytes_sent = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, string(job.Status), job.BytesSent, job.LastError, job.UpdatedAt.UTC(), string(job.ID))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves a job by ID.
func (r *SQLiteJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	var (
		job       domain.Job
		lastError sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, video_id, format_id, output, status, bytes_sent, last_error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, string(id)).Scan(&job.ID, &job.VideoID, &job.FormatID, &job.Output, &job.Status,
		&job.BytesSent, &lastError, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.LastError = lastError.String
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt
	return &job, nil
}

// Stats returns counts per status.
func (r *SQLiteJobRepository) Stats(ctx context.Context) (*JobStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(bytes_sent), 0) FROM jobs GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := &JobStats{}
	for rows.Next() {
		var (
			status string
			count  int
			bytes  int64
		)
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch domain.JobStatus(status) {
		case domain.JobStatusProcessing:
			stats.Processing = count
		case domain.JobStatusStreaming:
			stats.Streaming = count
		case domain.JobStatusCompleted:
			stats.Completed = count
		case domain.JobStatusFailed:
			stats.Failed = count
		}
		stats.BytesSent += bytes
	}
	return stats, rows.Err()
}

// Ping reports whether the database is reachable.
func (r *SQLiteJobRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

var _ JobRepository = (*SQLiteJobRepository)(nil)
