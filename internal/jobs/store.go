package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/model"
)

// ErrNotFound is returned for lookups of unknown or already-archived jobs
var ErrNotFound = errors.New("job not found")

// Publisher defines the interface for publishing job lifecycle events.
// *nats.Conn satisfies it; a nil Publisher disables event publishing.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Store defines the interface for storing and retrieving analysis jobs, so
// the in-memory map can be swapped for a durable store without touching
// orchestration logic
type Store interface {
	// Put stores a new job
	Put(ctx context.Context, job *model.AnalysisJob) error
	// Get retrieves a job by ID
	Get(ctx context.Context, id string) (*model.AnalysisJob, error)
	// List retrieves all jobs
	List(ctx context.Context) ([]*model.AnalysisJob, error)
	// Update replaces an existing job
	Update(ctx context.Context, job *model.AnalysisJob) error
	// CompareAndSwapStatus transitions a job's status only if it still has
	// the expected current status, and reports whether the swap happened
	CompareAndSwapStatus(ctx context.Context, id string, from, to model.JobStatus, note string) (bool, error)
}

// MemoryStore implements Store using an in-memory map. Each job is mutated
// by exactly one writer (the background task owning it); any number of
// status pollers read copies concurrently.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*model.AnalysisJob
	logger    *slog.Logger
	publisher Publisher
}

// NewMemoryStore creates a new in-memory job store. publisher may be nil.
func NewMemoryStore(logger *slog.Logger, publisher Publisher) *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*model.AnalysisJob),
		logger:    logger,
		publisher: publisher,
	}
}

// Put stores a new job
func (s *MemoryStore) Put(ctx context.Context, job *model.AnalysisJob) error {
	s.mu.Lock()
	stored := *job
	s.jobs[job.ID] = &stored
	s.mu.Unlock()

	s.logger.Info("Job stored", "job_id", job.ID, "status", job.Status)
	s.publishEvent("jobs.created", &stored)
	return nil
}

// Get retrieves a copy of a job by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	out := *job
	return &out, nil
}

// List retrieves copies of all jobs
func (s *MemoryStore) List(ctx context.Context) ([]*model.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*model.AnalysisJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out := *job
		jobs = append(jobs, &out)
	}
	return jobs, nil
}

// Update replaces an existing job
func (s *MemoryStore) Update(ctx context.Context, job *model.AnalysisJob) error {
	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
	}
	job.UpdatedAt = time.Now().UTC()
	stored := *job
	s.jobs[job.ID] = &stored
	s.mu.Unlock()

	if job.Status.IsTerminal() {
		s.publishEvent("jobs."+string(job.Status), &stored)
	}
	return nil
}

// CompareAndSwapStatus transitions a job's status only if it still has the
// expected status. This makes cancellation racing completion deterministic:
// a cancel succeeds only while the job is still queued.
func (s *MemoryStore) CompareAndSwapStatus(ctx context.Context, id string, from, to model.JobStatus, note string) (bool, error) {
	s.mu.Lock()
	job, exists := s.jobs[id]
	if !exists {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status != from {
		s.mu.Unlock()
		return false, nil
	}
	job.Status = to
	job.ProgressNote = note
	job.UpdatedAt = time.Now().UTC()
	stored := *job
	s.mu.Unlock()

	s.logger.Info("Job status changed", "job_id", id, "from", from, "to", to)
	if to.IsTerminal() {
		s.publishEvent("jobs."+string(to), &stored)
	}
	return true, nil
}

// publishEvent publishes a job lifecycle event, best effort
func (s *MemoryStore) publishEvent(subject string, job *model.AnalysisJob) {
	if s.publisher == nil {
		return
	}

	event := map[string]any{
		"job_id":    job.ID,
		"log_type":  job.LogType,
		"status":    job.Status,
		"timestamp": time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal job event", "job_id", job.ID, "error", err)
		return
	}
	if err := s.publisher.Publish(subject, data); err != nil {
		s.logger.Error("Failed to publish job event", "subject", subject, "job_id", job.ID, "error", err)
	}
}
