package domain

import (
	"time"
)

// JobID is a unique identifier for a download job. It doubles as the token
// that makes the job's scratch directory unique.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusStreaming  JobStatus = "streaming"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is the record of one download request, from format selection to cleanup.
type Job struct {
	ID        JobID
	VideoID   VideoID
	FormatID  FormatID
	Output    OutputKind
	Status    JobStatus
	BytesSent int64
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a new job in the processing state.
func NewJob(id JobID, videoID VideoID, formatID FormatID, output OutputKind) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		VideoID:   videoID,
		FormatID:  formatID,
		Output:    output,
		Status:    JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkStreaming records that the artifact was handed to the client.
func (j *Job) MarkStreaming() {
	j.Status = JobStatusStreaming
	j.UpdatedAt = time.Now()
}

// MarkCompleted records a fully delivered artifact.
func (j *Job) MarkCompleted(bytesSent int64) {
	j.Status = JobStatusCompleted
	j.BytesSent = bytesSent
	j.UpdatedAt = time.Now()
}

// MarkFailed records a failure. A job is never retried.
func (j *Job) MarkFailed(err string) {
	j.Status = JobStatusFailed
	j.LastError = err
	j.UpdatedAt = time.Now()
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
