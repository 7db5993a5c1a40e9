package controlplane

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/averros/drover/internal/bus"
	"github.com/averros/drover/internal/jobs"
	"github.com/averros/drover/internal/metrics"
	"github.com/averros/drover/internal/models"
)

// newTestServer wires a full API without a scheduler, so created jobs stay
// queued and cancellation paths are deterministic.
func newTestServer(t *testing.T, archive Pinger) (*httptest.Server, *jobs.Store) {
	t.Helper()

	b := bus.New(bus.Options{})
	t.Cleanup(func() { b.Close() })

	store := jobs.NewStore(b, 0)
	service := NewService(store, b, metrics.NewRegistry())
	srv := httptest.NewServer(NewServer(service, archive, "").Handler())
	t.Cleanup(srv.Close)

	return srv, store
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s response: %v", url, err)
		}
	}
	return resp
}

func TestCreateJob(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/jobs", map[string]interface{}{
		"type":  "open_url",
		"input": map[string]interface{}{"device_id": "dev-1", "url": "https://example.com"},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode job: %v", err)
	}
	if job.ID != 1 || job.Status != models.JobStatusQueued || job.LaneID != "device:dev-1" {
		t.Errorf("Unexpected job: %+v", job)
	}
}

func TestCreateJobUnknownType(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/jobs", map[string]interface{}{"type": "make_coffee"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateJobMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestGetJob(t *testing.T) {
	srv, store := newTestServer(t, nil)

	created, _ := store.Create(models.JobTypeOpenURL, models.Payload{"device_id": "dev-1"})

	var job models.Job
	resp := getJSON(t, srv.URL+"/jobs/1", &job)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if job.ID != created.ID || job.LaneID != created.LaneID {
		t.Errorf("Unexpected job: %+v", job)
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := getJSON(t, srv.URL+"/jobs/42", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestGetJobInvalidID(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := getJSON(t, srv.URL+"/jobs/abc", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	srv, store := newTestServer(t, nil)

	store.Create(models.JobTypeOpenURL, nil)
	store.Create(models.JobTypeSnapshotSuite, nil)

	var list []models.JobSummary
	resp := getJSON(t, srv.URL+"/jobs", &list)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if len(list) != 2 || list[0].ID != 2 || list[1].ID != 1 {
		t.Errorf("Expected newest first, got %+v", list)
	}
}

func TestCancelJob(t *testing.T) {
	srv, store := newTestServer(t, nil)

	job, _ := store.Create(models.JobTypeOpenURL, nil)

	resp := postJSON(t, srv.URL+"/jobs/1/cancel", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobStatusCancelled {
		t.Errorf("Expected cancelled, got %s", got.Status)
	}

	// A second cancel hits a terminal job.
	resp = postJSON(t, srv.URL+"/jobs/1/cancel", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
}

func TestRetryJob(t *testing.T) {
	srv, store := newTestServer(t, nil)

	job, _ := store.Create(models.JobTypeOpenURL, models.Payload{"device_id": "dev-1"})
	store.Cancel(job.ID)

	resp := postJSON(t, srv.URL+"/jobs/1/retry", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var clone models.Job
	if err := json.NewDecoder(resp.Body).Decode(&clone); err != nil {
		t.Fatalf("Failed to decode clone: %v", err)
	}
	if clone.ID == job.ID || clone.Status != models.JobStatusQueued {
		t.Errorf("Unexpected clone: %+v", clone)
	}
}

func TestRetryJobStatusCodes(t *testing.T) {
	srv, store := newTestServer(t, nil)

	store.Create(models.JobTypeOpenURL, nil) // stays queued

	resp := postJSON(t, srv.URL+"/jobs/1/retry", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Retry of a queued job: expected 409, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/jobs/99/retry", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Retry of a missing job: expected 404, got %d", resp.StatusCode)
	}
}

func TestLanes(t *testing.T) {
	srv, store := newTestServer(t, nil)

	store.Create(models.JobTypeOpenURL, models.Payload{"device_id": "dev-b"})
	store.Create(models.JobTypeOpenURL, models.Payload{"device_id": "dev-a"})

	var lanes []models.LaneSummary
	resp := getJSON(t, srv.URL+"/lanes", &lanes)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if len(lanes) != 2 || lanes[0].ID != "device:dev-a" || lanes[1].ID != "device:dev-b" {
		t.Errorf("Expected lanes sorted by id, got %+v", lanes)
	}
	if lanes[0].QueueDepth != 1 {
		t.Errorf("Expected queue depth 1, got %d", lanes[0].QueueDepth)
	}
}

func TestEventHistory(t *testing.T) {
	srv, store := newTestServer(t, nil)

	for i := 0; i < 5; i++ {
		store.Create(models.JobTypeOpenURL, nil)
	}

	var events []models.Event
	resp := getJSON(t, srv.URL+"/events/history?limit=3", &events)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].Type != jobs.EventJobQueued {
		t.Errorf("Unexpected event type: %s", events[0].Type)
	}
}

func TestEventHistoryInvalidLimit(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, limit := range []string{"abc", "0", "-3"} {
		resp := getJSON(t, srv.URL+"/events/history?limit="+limit, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var entries []models.MetricEntry
	resp := getJSON(t, srv.URL+"/metrics", &entries)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if entries == nil {
		t.Error("Expected an empty array, not null")
	}
}

func TestHealthWithoutArchive(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var health HealthResponse
	resp := getJSON(t, srv.URL+"/health", &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !health.OK || health.Archive != "disabled" || health.Version != Version {
		t.Errorf("Unexpected health: %+v", health)
	}
}

type stubPinger struct{ err error }

func (p *stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthWithArchive(t *testing.T) {
	srv, _ := newTestServer(t, &stubPinger{})

	var health HealthResponse
	resp := getJSON(t, srv.URL+"/health", &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if health.Archive != "ok" {
		t.Errorf("Expected archive ok, got %q", health.Archive)
	}
}

func TestHealthWithBrokenArchive(t *testing.T) {
	srv, _ := newTestServer(t, &stubPinger{err: errors.New("locked")})

	var health HealthResponse
	resp := getJSON(t, srv.URL+"/health", &health)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", resp.StatusCode)
	}
	if health.OK || !strings.Contains(health.Archive, "locked") {
		t.Errorf("Unexpected health: %+v", health)
	}
}

func TestEventStreamDeliversEvents(t *testing.T) {
	srv, store := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Wrong content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readFrame := func() (string, string) {
		t.Helper()
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("Stream read failed: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, data := readFrame()
	if name != "hello" || !strings.Contains(data, "subscriber_id") {
		t.Fatalf("Expected hello frame, got %s %s", name, data)
	}

	if _, err := store.Create(models.JobTypeOpenURL, models.Payload{"device_id": "dev-1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	name, data = readFrame()
	if name != jobs.EventJobQueued {
		t.Fatalf("Expected job-queued frame, got %s", name)
	}
	var ev models.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("Frame payload is not an event: %v", err)
	}
	if ev.Type != jobs.EventJobQueued {
		t.Errorf("Unexpected event: %+v", ev)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/lanes", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}
