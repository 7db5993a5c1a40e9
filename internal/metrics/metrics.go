// Package metrics provides per-operation counters for drover.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/averros/drover/internal/models"
)

// Registry tracks counts and durations per named operation. Entries are
// created lazily on first observation and updated in place afterwards.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*models.MetricEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*models.MetricEntry),
	}
}

// Track records one observation of the named operation.
func (r *Registry) Track(name string, d time.Duration, ok bool, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.entries[name]
	if !found {
		e = &models.MetricEntry{Name: name}
		r.entries[name] = e
	}

	ms := d.Milliseconds()
	e.Count++
	e.TotalDurationMs += ms
	e.LastDurationMs = ms
	e.LastAt = time.Now().UTC()
	if ok {
		e.Success++
	} else {
		e.Errors++
		e.LastError = errMsg
	}
}

// With measures fn, records its outcome under name, and returns fn's error
// unchanged.
func (r *Registry) With(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if err != nil {
		r.Track(name, time.Since(start), false, err.Error())
		return err
	}
	r.Track(name, time.Since(start), true, "")
	return nil
}

// Snapshot returns a copy of every entry, sorted by name.
func (r *Registry) Snapshot() []models.MetricEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.MetricEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
