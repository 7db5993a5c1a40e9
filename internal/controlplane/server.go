package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/averros/drover/internal/bus"
	"github.com/averros/drover/internal/jobs"
	"github.com/averros/drover/internal/models"
)

// Version is the drover release version reported by /health.
const Version = "0.3.0"

// Pinger is the optional archive health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides the HTTP API for drover.
type Server struct {
	service *Service
	archive Pinger
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server. archive may be nil when archival is
// disabled.
func NewServer(service *Service, archive Pinger, addr string) *Server {
	return &Server{
		service: service,
		archive: archive,
		addr:    addr,
	}
}

// Handler returns the API route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)
	mux.HandleFunc("/lanes", s.handleLanes)
	mux.HandleFunc("/events", s.handleEventStream)
	mux.HandleFunc("/events/history", s.handleHistory)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events holds the connection open.
	}

	log.Printf("Starting drover daemon on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleJobs handles POST /jobs and GET /jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createJob(w, r)
	case http.MethodGet:
		s.listJobs(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobByID handles /jobs/{id} and /jobs/{id}/{action}
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "job id required", http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getJob(w, r, id)
	case action == "cancel" && r.Method == http.MethodPost:
		s.cancelJob(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.retryJob(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type createJobRequest struct {
	Type  models.JobType `json:"type"`
	Input models.Payload `json:"input"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	job, err := s.service.CreateJob(req.Type, req.Input)
	if err != nil {
		if errors.Is(err, jobs.ErrUnknownJobType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	list := s.service.ListJobs()
	if list == nil {
		list = []models.JobSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request, id int64) {
	job, ok := s.service.GetJob(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request, id int64) {
	if !s.service.CancelJob(id) {
		http.Error(w, "job is not cancellable", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": models.JobStatusCancelled})
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.service.RetryJob(id)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			status = http.StatusNotFound
		case errors.Is(err, jobs.ErrNotRetryable):
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleLanes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	lanes := s.service.Lanes()
	if lanes == nil {
		lanes = []models.LaneSummary{}
	}
	writeJSON(w, http.StatusOK, lanes)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events := s.service.History(limit)
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := s.service.Metrics()
	if entries == nil {
		entries = []models.MetricEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleEventStream serves the live event feed over Server-Sent Events.
// The subscriber is dropped as soon as the client disconnects or a write
// fails; missed events are recoverable via /events/history.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.service.Subscribe()
	defer s.service.Unsubscribe(sub)

	if err := writeSSEEvent(w, "hello", map[string]interface{}{
		"subscriber_id": sub.ID,
		"time":          time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.C:
			if ev.Type == bus.EventHeartbeat {
				if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
					return
				}
				flusher.Flush()
				continue
			}
			if err := writeSSEEvent(w, ev.Type, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Archive string `json:"archive"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{
		OK:      true,
		Archive: "disabled",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if s.archive != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.archive.Ping(ctx); err != nil {
			health.OK = false
			health.Archive = fmt.Sprintf("error: %v", err)
			status = http.StatusServiceUnavailable
		} else {
			health.Archive = "ok"
		}
	}

	writeJSON(w, status, health)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSSEEvent(w http.ResponseWriter, name string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
