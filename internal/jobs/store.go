// Package jobs provides the in-memory job catalogue and per-device lane
// registry for drover.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/averros/drover/internal/models"
)

// DefaultMaxJobs bounds the in-memory job history. Oldest records are
// trimmed first.
const DefaultMaxJobs = 300

// Event types published by the store.
const (
	EventJobQueued    = "job-queued"
	EventJobRunning   = "job-running"
	EventJobCompleted = "job-completed"
	EventJobFailed    = "job-failed"
	EventJobCancelled = "job-cancelled"
)

// Publisher receives lifecycle events. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(eventType, message string, data models.Payload) models.Event
}

// Store is the in-memory catalogue of job records plus the lane registry.
// One mutex guards both: job creation and cancellation race with a
// concurrently draining lane.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[int64]*models.Job
	order   []int64
	lanes   map[string]*lane
	maxJobs int
	events  Publisher
	wake    func()
}

// NewStore creates an empty Store publishing lifecycle events to events.
func NewStore(events Publisher, maxJobs int) *Store {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	return &Store{
		jobs:    make(map[int64]*models.Job),
		lanes:   make(map[string]*lane),
		maxJobs: maxJobs,
		events:  events,
	}
}

// SetWake registers the scheduler kick invoked after each enqueue. The
// callback must not block; job creation never waits on execution.
func (s *Store) SetWake(fn func()) {
	s.mu.Lock()
	s.wake = fn
	s.mu.Unlock()
}

// Create validates the job type, derives the owning lane from the input's
// device_id, appends the job to the bounded history, enqueues it on its lane
// and emits a job-queued event. The scheduler is kicked fire-and-forget.
func (s *Store) Create(jobType models.JobType, input models.Payload) (*models.Job, error) {
	if !models.ValidJobType(jobType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}

	deviceID := ""
	if input != nil {
		if v, ok := input["device_id"].(string); ok {
			deviceID = v
		}
	}
	laneID := models.LaneIDFor(deviceID)

	s.mu.Lock()
	s.nextID++
	job := &models.Job{
		ID:        s.nextID,
		Type:      jobType,
		LaneID:    laneID,
		DeviceID:  deviceID,
		Status:    models.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
		Input:     input,
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	if len(s.order) > s.maxJobs {
		// A trimmed id may still sit in a lane queue; the drain loop
		// skips ids it cannot resolve.
		drop := s.order[0]
		s.order = s.order[1:]
		delete(s.jobs, drop)
	}

	l := s.laneFor(laneID, deviceID)
	l.queue = append(l.queue, job.ID)
	l.touch()
	depth := len(l.queue)

	out := cloneJob(job)
	wake := s.wake

	// Published under the lock: the id is already poppable, and a drain that
	// wins the lock first could otherwise emit job-running ahead of this.
	s.events.Publish(EventJobQueued,
		fmt.Sprintf("job %d (%s) queued on %s", out.ID, out.Type, out.LaneID),
		models.Payload{
			"id":          out.ID,
			"type":        string(out.Type),
			"lane_id":     out.LaneID,
			"queue_depth": depth,
		})
	s.mu.Unlock()

	if wake != nil {
		wake()
	}
	return out, nil
}

// Get returns a copy of the job with the given id.
func (s *Store) Get(id int64) (*models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// ListSummaries returns every retained job newest-first, without the bulk
// input/result payloads.
func (s *Store) ListSummaries() []models.JobSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.JobSummary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		job, ok := s.jobs[s.order[i]]
		if !ok {
			continue
		}
		out = append(out, models.JobSummary{
			ID:         job.ID,
			Type:       job.Type,
			LaneID:     job.LaneID,
			DeviceID:   job.DeviceID,
			Status:     job.Status,
			CreatedAt:  job.CreatedAt,
			DurationMs: job.DurationMs,
			Error:      job.Error,
		})
	}
	return out
}

// Cancel cancels a job that is still queued. It removes the id from its
// lane's queue, marks the job cancelled with zero duration and emits a
// job-cancelled event. Any other state leaves the job untouched and
// returns false.
func (s *Store) Cancel(id int64) bool {
	s.mu.Lock()

	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusQueued {
		s.mu.Unlock()
		return false
	}

	if l, ok := s.lanes[job.LaneID]; ok {
		l.removeFromQueue(id)
		l.cancelled++
		l.touch()
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCancelled
	job.FinishedAt = &now
	job.DurationMs = 0
	laneID := job.LaneID
	s.mu.Unlock()

	s.events.Publish(EventJobCancelled,
		fmt.Sprintf("job %d cancelled", id),
		models.Payload{"id": id, "lane_id": laneID})
	return true
}

// Retry clones a terminal job's input into a brand-new queued job of the
// same type. The new job shares nothing with the old one.
func (s *Store) Retry(id int64) (*models.Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if !job.Status.Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %d is %s", ErrNotRetryable, id, job.Status)
	}
	jobType := job.Type
	input := job.Input.Copy()
	s.mu.Unlock()

	return s.Create(jobType, input)
}

// MarkRunning transitions a queued job to running and stamps its start time.
// It returns false when the job is missing or no longer queued, which tells
// the drain loop to skip it (concurrent cancellation).
func (s *Store) MarkRunning(id int64) (*models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusQueued {
		return nil, false
	}
	now := time.Now().UTC()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	return cloneJob(job), true
}

// Complete transitions a running job to completed, records its result and
// increments the lane's completed counter.
func (s *Store) Complete(id int64, result models.Payload) (*models.Job, bool) {
	return s.finish(id, models.JobStatusCompleted, result, "")
}

// Fail transitions a running job to failed, records the error message and
// increments the lane's failed counter.
func (s *Store) Fail(id int64, errMsg string) (*models.Job, bool) {
	return s.finish(id, models.JobStatusFailed, nil, errMsg)
}

func (s *Store) finish(id int64, status models.JobStatus, result models.Payload, errMsg string) (*models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusRunning {
		return nil, false
	}

	now := time.Now().UTC()
	job.Status = status
	job.FinishedAt = &now
	if job.StartedAt != nil {
		job.DurationMs = now.Sub(*job.StartedAt).Milliseconds()
	}
	job.Result = result
	job.Error = errMsg

	if l, ok := s.lanes[job.LaneID]; ok {
		if status == models.JobStatusCompleted {
			l.completed++
		} else {
			l.failed++
		}
		l.touch()
	}
	return cloneJob(job), true
}

func cloneJob(job *models.Job) *models.Job {
	out := *job
	out.Input = job.Input.Copy()
	out.Result = job.Result.Copy()
	return &out
}
