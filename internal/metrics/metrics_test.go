package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestTrackCreatesAndUpdates(t *testing.T) {
	r := NewRegistry()

	r.Track("job.open_url", 40*time.Millisecond, true, "")
	r.Track("job.open_url", 60*time.Millisecond, false, "device offline")

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(snap))
	}

	e := snap[0]
	if e.Name != "job.open_url" {
		t.Errorf("Wrong name: %s", e.Name)
	}
	if e.Count != 2 || e.Success != 1 || e.Errors != 1 {
		t.Errorf("Wrong counters: count=%d success=%d errors=%d", e.Count, e.Success, e.Errors)
	}
	if e.TotalDurationMs != 100 {
		t.Errorf("Expected total 100ms, got %d", e.TotalDurationMs)
	}
	if e.LastDurationMs != 60 {
		t.Errorf("Expected last 60ms, got %d", e.LastDurationMs)
	}
	if e.LastError != "device offline" {
		t.Errorf("Expected last error recorded, got %q", e.LastError)
	}
	if e.LastAt.IsZero() {
		t.Error("Expected LastAt to be stamped")
	}
}

func TestWithRecordsSuccess(t *testing.T) {
	r := NewRegistry()

	err := r.With("op", func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].Success != 1 {
		t.Errorf("Expected one successful observation, got %+v", snap)
	}
}

func TestWithReturnsOriginalError(t *testing.T) {
	r := NewRegistry()

	sentinel := errors.New("boom")
	err := r.With("op", func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected the original error back, got %v", err)
	}

	snap := r.Snapshot()
	if snap[0].Errors != 1 || snap[0].LastError != "boom" {
		t.Errorf("Expected failure recorded, got %+v", snap[0])
	}
}

func TestSnapshotSorted(t *testing.T) {
	r := NewRegistry()
	r.Track("b", time.Millisecond, true, "")
	r.Track("a", time.Millisecond, true, "")
	r.Track("c", time.Millisecond, true, "")

	snap := r.Snapshot()
	if snap[0].Name != "a" || snap[1].Name != "b" || snap[2].Name != "c" {
		t.Errorf("Snapshot not sorted by name: %v", []string{snap[0].Name, snap[1].Name, snap[2].Name})
	}
}
