package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/tubegrabba/internal/domain"
)

// DefaultRecentJobs is how many finished jobs the in-memory history keeps
// for lookups when no limit is configured.
const DefaultRecentJobs = 1000

// InMemoryJobRepository implements JobRepository using in-memory storage.
// Unfinished jobs are kept until they finish; finished jobs are folded into
// running totals and only the most recent ones stay retrievable.
// Jobs are copied on the way in and out.
type InMemoryJobRepository struct {
	mu       sync.RWMutex
	live     map[domain.JobID]domain.Job
	recent   []domain.Job // ring; once full, next is the oldest slot
	next     int
	capacity int
	totals   JobStats // finished jobs only
}

// NewInMemoryJobRepository creates a new in-memory job repository that keeps
// at most capacity finished jobs. A capacity <= 0 uses DefaultRecentJobs.
func NewInMemoryJobRepository(capacity int) *InMemoryJobRepository {
	if capacity <= 0 {
		capacity = DefaultRecentJobs
	}
	return &InMemoryJobRepository{
		live:     make(map[domain.JobID]domain.Job),
		recent:   make([]domain.Job, 0, capacity),
		capacity: capacity,
	}
}

// Record stores a new job.
func (r *InMemoryJobRepository) Record(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.Finished() {
		r.finish(*job)
		return nil
	}
	r.live[job.ID] = *job
	return nil
}

// Update replaces the stored state of an existing job.
func (r *InMemoryJobRepository) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[job.ID]; ok {
		if job.Finished() {
			delete(r.live, job.ID)
			r.finish(*job)
		} else {
			r.live[job.ID] = *job
		}
		return nil
	}

	if i := r.recentIndex(job.ID); i >= 0 {
		r.count(r.recent[i], -1)
		r.recent[i] = *job
		r.count(*job, 1)
		return nil
	}
	return domain.ErrNotFound
}

// Get retrieves a job by ID. Finished jobs evicted from the recent set are
// reported as not found.
func (r *InMemoryJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if job, ok := r.live[id]; ok {
		return &job, nil
	}
	if i := r.recentIndex(id); i >= 0 {
		job := r.recent[i]
		return &job, nil
	}
	return nil, domain.ErrNotFound
}

// Stats returns counts per status. Finished counts include evicted jobs.
func (r *InMemoryJobRepository) Stats(ctx context.Context) (*JobStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := r.totals
	for _, job := range r.live {
		switch job.Status {
		case domain.JobStatusProcessing:
			stats.Processing++
		case domain.JobStatusStreaming:
			stats.Streaming++
		}
		stats.BytesSent += job.BytesSent
	}
	return &stats, nil
}

// Ping always succeeds.
func (r *InMemoryJobRepository) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of jobs currently held.
func (r *InMemoryJobRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.live) + len(r.recent)
}

// Clear removes all jobs and totals (useful for testing).
func (r *InMemoryJobRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.live = make(map[domain.JobID]domain.Job)
	r.recent = make([]domain.Job, 0, r.capacity)
	r.next = 0
	r.totals = JobStats{}
}

// finish adds a finished job to the totals and the recent ring.
// Callers must hold mu.
func (r *InMemoryJobRepository) finish(job domain.Job) {
	r.count(job, 1)
	if len(r.recent) < r.capacity {
		r.recent = append(r.recent, job)
		return
	}
	r.recent[r.next] = job
	r.next = (r.next + 1) % r.capacity
}

// count adds (delta 1) or removes (delta -1) a finished job from the totals.
func (r *InMemoryJobRepository) count(job domain.Job, delta int) {
	switch job.Status {
	case domain.JobStatusCompleted:
		r.totals.Completed += delta
	case domain.JobStatusFailed:
		r.totals.Failed += delta
	default:
		return
	}
	r.totals.BytesSent += int64(delta) * job.BytesSent
}

func (r *InMemoryJobRepository) recentIndex(id domain.JobID) int {
	for i := range r.recent {
		if r.recent[i].ID == id {
			return i
		}
	}
	return -1
}

var _ JobRepository = (*InMemoryJobRepository)(nil)
