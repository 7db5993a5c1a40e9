package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/averros/drover/internal/models"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "drover.db"))
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAppendAndReadEvents(t *testing.T) {
	a := newTestArchive(t)

	now := time.Now().UTC().Truncate(time.Second)
	for i := int64(1); i <= 3; i++ {
		ev := models.Event{
			ID:      i,
			At:      now.Add(time.Duration(i) * time.Second),
			Type:    "job-queued",
			Message: "queued",
			Data:    models.Payload{"lane_id": "device:dev-1"},
		}
		if err := a.AppendEvent(ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	events, err := a.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].ID != 1 || events[2].ID != 3 {
		t.Errorf("Expected oldest-first 1..3, got %d..%d", events[0].ID, events[2].ID)
	}
	if events[0].Data["lane_id"] != "device:dev-1" {
		t.Errorf("Payload round trip failed: %v", events[0].Data)
	}
}

func TestRecentEventsLimit(t *testing.T) {
	a := newTestArchive(t)

	for i := int64(1); i <= 5; i++ {
		if err := a.AppendEvent(models.Event{ID: i, At: time.Now().UTC(), Type: "test"}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	events, err := a.RecentEvents(2)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	// The newest two, oldest first.
	if events[0].ID != 4 || events[1].ID != 5 {
		t.Errorf("Expected events 4 and 5, got %d and %d", events[0].ID, events[1].ID)
	}
}

func TestRecordAndReadJobRuns(t *testing.T) {
	a := newTestArchive(t)

	created := time.Now().UTC().Add(-time.Minute)
	started := created.Add(time.Second)
	finished := started.Add(2 * time.Second)

	job := models.Job{
		ID:         7,
		Type:       models.JobTypeOpenURL,
		LaneID:     "device:dev-1",
		DeviceID:   "dev-1",
		Status:     models.JobStatusFailed,
		CreatedAt:  created,
		StartedAt:  &started,
		FinishedAt: &finished,
		DurationMs: 2000,
		Input:      models.Payload{"url": "https://example.com"},
		Error:      "device offline",
	}
	if err := a.RecordJob(job); err != nil {
		t.Fatalf("RecordJob failed: %v", err)
	}

	runs, err := a.RecentJobRuns(10)
	if err != nil {
		t.Fatalf("RecentJobRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}

	got := runs[0]
	if got.ID != 7 || got.Type != models.JobTypeOpenURL || got.LaneID != "device:dev-1" {
		t.Errorf("Identity round trip failed: %+v", got)
	}
	if got.Status != models.JobStatusFailed || got.Error != "device offline" {
		t.Errorf("Outcome round trip failed: %+v", got)
	}
	if got.DurationMs != 2000 {
		t.Errorf("Expected duration 2000ms, got %d", got.DurationMs)
	}
}

func TestRecordJobWithoutTimestamps(t *testing.T) {
	a := newTestArchive(t)

	// A cancelled job never started.
	job := models.Job{
		ID:        1,
		Type:      models.JobTypeSnapshotSuite,
		LaneID:    models.DefaultLaneID,
		Status:    models.JobStatusCancelled,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.RecordJob(job); err != nil {
		t.Fatalf("RecordJob failed: %v", err)
	}

	runs, err := a.RecentJobRuns(1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentJobRuns failed: runs=%d err=%v", len(runs), err)
	}
	if runs[0].Status != models.JobStatusCancelled || runs[0].DurationMs != 0 {
		t.Errorf("Cancelled run round trip failed: %+v", runs[0])
	}
}

func TestPing(t *testing.T) {
	a := newTestArchive(t)
	if err := a.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drover.db")

	a, err := New(path)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	if err := a.AppendEvent(models.Event{ID: 1, At: time.Now().UTC(), Type: "test"}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	a.Close()

	b, err := New(path)
	if err != nil {
		t.Fatalf("Failed to reopen archive: %v", err)
	}
	defer b.Close()

	events, err := b.RecentEvents(10)
	if err != nil || len(events) != 1 {
		t.Fatalf("Expected the event to survive a reopen: events=%d err=%v", len(events), err)
	}
}
