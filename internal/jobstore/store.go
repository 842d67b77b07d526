package jobstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docgen-backend/internal/models"
)

var (
	// ErrNotFound is returned when a job id is unknown.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned for backward or skipping status moves.
	// The record is left unchanged; callers treat this as a programming error.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// allowed enumerates the forward edges of the job state machine.
// queued -> failed covers dispatch errors that occur before a worker starts.
var allowed = map[string]map[string]bool{
	models.StatusQueued: {
		models.StatusRunning: true,
		models.StatusFailed:  true,
	},
	models.StatusRunning: {
		models.StatusCompleted: true,
		models.StatusFailed:    true,
	},
}

// Store owns job records and their state transitions for the life of the
// process. It is the single source of truth for status, logs, and results.
// Records are held in memory only; jobs do not survive a restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	log  *zap.SugaredLogger
}

// New constructs an empty store. Built once at process start and handed to
// the API layer and dispatcher by the composition root.
func New(log *zap.SugaredLogger) *Store {
	return &Store{
		jobs: make(map[string]*models.Job),
		log:  log.With("component", "jobstore"),
	}
}

// CreateJob inserts a new record in the queued state and returns its id.
func (s *Store) CreateJob(kind, description string) string {
	id := uuid.New().String()
	now := time.Now().UTC()
	s.mu.Lock()
	s.jobs[id] = &models.Job{
		ID:          id,
		Kind:        kind,
		Description: description,
		Status:      models.StatusQueued,
		Logs:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Unlock()
	s.log.Debugw("job created", "job_id", id, "kind", kind)
	return id
}

// Adopt inserts a queued record under an externally assigned id if none
// exists. Queue-mode workers use it so a task produced in another process
// still has a local lifecycle record; if the id is already known this is a
// no-op.
func (s *Store) Adopt(id, kind, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return
	}
	now := time.Now().UTC()
	s.jobs[id] = &models.Job{
		ID:          id,
		Kind:        kind,
		Description: description,
		Status:      models.StatusQueued,
		Logs:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AppendLog appends a progress message to a job's log. Unknown or terminal
// jobs are a no-op: a crashed worker's late log must not corrupt a record
// another path already finalized.
func (s *Store) AppendLog(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || models.IsTerminal(job.Status) {
		return
	}
	job.Logs = append(job.Logs, message)
	job.UpdatedAt = time.Now().UTC()
}

// Complete moves a job to the completed state and records its result.
func (s *Store) Complete(id string, result *models.Result) error {
	return s.transition(id, models.StatusCompleted, result, "")
}

// Fail moves a job to the failed state and records the reason.
func (s *Store) Fail(id, reason string) error {
	return s.transition(id, models.StatusFailed, nil, reason)
}

// MarkRunning moves a queued job to the running state.
func (s *Store) MarkRunning(id string) error {
	return s.transition(id, models.StatusRunning, nil, "")
}

// transition applies the state machine. A repeated terminal transition with
// the same status is a silent no-op so retried workers cannot corrupt an
// already-finalized job; any other invalid move returns ErrInvalidTransition
// and leaves the record untouched.
func (s *Store) transition(id, status string, result *models.Result, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if models.IsTerminal(job.Status) {
		if job.Status == status {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}
	if !allowed[job.Status][status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}
	job.Status = status
	switch status {
	case models.StatusCompleted:
		job.Result = result
	case models.StatusFailed:
		job.FailureReason = &reason
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns a snapshot of a job. The snapshot owns its own log slice, so
// callers can read it while writers keep appending.
func (s *Store) Get(id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	snap := *job
	snap.Logs = make([]string, len(job.Logs))
	copy(snap.Logs, job.Logs)
	return snap, nil
}
