// Package controlplane provides the HTTP API and service layer for drover.
package controlplane

import (
	"github.com/averros/drover/internal/bus"
	"github.com/averros/drover/internal/jobs"
	"github.com/averros/drover/internal/metrics"
	"github.com/averros/drover/internal/models"
)

// Service exposes the core operations to the transport layer.
type Service struct {
	store   *jobs.Store
	bus     *bus.Bus
	metrics *metrics.Registry
}

// NewService creates a control plane service.
func NewService(store *jobs.Store, b *bus.Bus, reg *metrics.Registry) *Service {
	return &Service{
		store:   store,
		bus:     b,
		metrics: reg,
	}
}

// CreateJob enqueues a new job.
func (s *Service) CreateJob(jobType models.JobType, input models.Payload) (*models.Job, error) {
	return s.store.Create(jobType, input)
}

// GetJob retrieves a job by id.
func (s *Service) GetJob(id int64) (*models.Job, bool) {
	return s.store.Get(id)
}

// ListJobs returns job summaries, newest first.
func (s *Service) ListJobs() []models.JobSummary {
	return s.store.ListSummaries()
}

// CancelJob cancels a still-queued job. False means the job was missing or
// past the point of cancellation; nothing was mutated.
func (s *Service) CancelJob(id int64) bool {
	return s.store.Cancel(id)
}

// RetryJob clones a terminal job into a fresh queued one.
func (s *Service) RetryJob(id int64) (*models.Job, error) {
	return s.store.Retry(id)
}

// Lanes returns lane summaries for observability.
func (s *Service) Lanes() []models.LaneSummary {
	return s.store.Lanes()
}

// History returns the most recent events from the in-memory log.
func (s *Service) History(limit int) []models.Event {
	return s.bus.History(limit)
}

// Metrics returns a snapshot of the operation counters.
func (s *Service) Metrics() []models.MetricEntry {
	return s.metrics.Snapshot()
}

// Subscribe registers a live event listener.
func (s *Service) Subscribe() *bus.Subscription {
	return s.bus.Subscribe()
}

// Unsubscribe removes a live event listener.
func (s *Service) Unsubscribe(sub *bus.Subscription) {
	s.bus.Unsubscribe(sub)
}
