package jobs

import (
	"sort"
	"time"

	"github.com/averros/drover/internal/models"
)

// lane is a single-concurrency execution context bound to one device.
// All fields are guarded by the owning Store's mutex.
type lane struct {
	id        string
	deviceID  string
	queue     []int64
	active    bool
	completed int64
	failed    int64
	cancelled int64
	updatedAt time.Time
}

// laneFor returns the lane owning laneID, creating it lazily. Caller holds
// the store mutex.
func (s *Store) laneFor(laneID, deviceID string) *lane {
	l, ok := s.lanes[laneID]
	if !ok {
		l = &lane{id: laneID, deviceID: deviceID, updatedAt: time.Now().UTC()}
		s.lanes[laneID] = l
	}
	return l
}

func (l *lane) touch() {
	l.updatedAt = time.Now().UTC()
}

// removeFromQueue drops id from the lane's queue if present.
func (l *lane) removeFromQueue(id int64) bool {
	for i, queued := range l.queue {
		if queued == id {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Lanes returns summaries of every known lane, sorted by lane id.
func (s *Store) Lanes() []models.LaneSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.LaneSummary, 0, len(s.lanes))
	for _, l := range s.lanes {
		out = append(out, models.LaneSummary{
			ID:         l.id,
			DeviceID:   l.deviceID,
			QueueDepth: len(l.queue),
			Active:     l.active,
			Completed:  l.completed,
			Failed:     l.failed,
			Cancelled:  l.cancelled,
			UpdatedAt:  l.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingIdleLanes returns ids of lanes that hold queued work but have no
// drain loop running.
func (s *Store) PendingIdleLanes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for id, l := range s.lanes {
		if !l.active && len(l.queue) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// TryActivate atomically claims the drain loop for a lane. It succeeds only
// when the lane is idle and has queued work, so at most one drain loop runs
// per lane.
func (s *Store) TryActivate(laneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[laneID]
	if !ok || l.active || len(l.queue) == 0 {
		return false
	}
	l.active = true
	l.touch()
	return true
}

// NextQueued pops the front of a lane's queue. The second return is false
// when the queue is empty or the lane is unknown.
func (s *Store) NextQueued(laneID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[laneID]
	if !ok || len(l.queue) == 0 {
		return 0, false
	}
	id := l.queue[0]
	l.queue = l.queue[1:]
	l.touch()
	return id, true
}

// FinishDrain ends a drain loop if the lane's queue is empty. It returns true
// when more work arrived in the meantime, in which case the lane stays active
// and the caller must keep draining. The queue check and the active flip
// happen under one lock so no enqueue can slip between them unnoticed.
func (s *Store) FinishDrain(laneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[laneID]
	if !ok {
		return false
	}
	if len(l.queue) > 0 {
		return true
	}
	l.active = false
	l.touch()
	return false
}
