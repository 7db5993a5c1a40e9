// Package models defines the core domain types for drover.
package models

import (
	"fmt"
	"time"
)

// JobType identifies which device-automation action a job performs.
type JobType string

const (
	JobTypeOpenURL       JobType = "open_url"
	JobTypeSnapshotSuite JobType = "snapshot_suite"
	JobTypeStressRun     JobType = "stress_run"
	JobTypeWorkflowRun   JobType = "workflow_run"
	JobTypeDeviceProfile JobType = "device_profile"
)

// ValidJobType reports whether t is a member of the closed job type set.
func ValidJobType(t JobType) bool {
	switch t {
	case JobTypeOpenURL, JobTypeSnapshotSuite, JobTypeStressRun, JobTypeWorkflowRun, JobTypeDeviceProfile:
		return true
	}
	return false
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether s permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Payload is an opaque key/value document passed between the API, the
// store and the executor without interpretation.
type Payload map[string]interface{}

// Copy returns an independent copy of the payload. Nested maps and slices
// are copied recursively, so mutating the copy never touches the source.
func (p Payload) Copy() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Payload:
		return t.Copy()
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, iv := range t {
			m[k] = copyValue(iv)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, iv := range t {
			s[i] = copyValue(iv)
		}
		return s
	default:
		return v
	}
}

// DefaultLaneID is the lane used for jobs that target no particular device.
const DefaultLaneID = "device:default"

// LaneIDFor derives the owning lane for a device id.
func LaneIDFor(deviceID string) string {
	if deviceID == "" {
		return DefaultLaneID
	}
	return fmt.Sprintf("device:%s", deviceID)
}

// Job is one queued unit of automation work.
//
// Status moves one-directionally along queued -> running -> terminal.
// A retry never revives a job; it creates a new one.
type Job struct {
	ID         int64      `json:"id"`
	Type       JobType    `json:"type"`
	LaneID     string     `json:"lane_id"`
	DeviceID   string     `json:"device_id,omitempty"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Input      Payload    `json:"input,omitempty"`
	Result     Payload    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// JobSummary is the list projection of a job without the bulk payloads.
type JobSummary struct {
	ID         int64     `json:"id"`
	Type       JobType   `json:"type"`
	LaneID     string    `json:"lane_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	Status     JobStatus `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// LaneSummary is the introspection view of a lane.
type LaneSummary struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id,omitempty"`
	QueueDepth int       `json:"queue_depth"`
	Active     bool      `json:"active"`
	Completed  int64     `json:"completed"`
	Failed     int64     `json:"failed"`
	Cancelled  int64     `json:"cancelled"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Event is an immutable, sequenced fact describing a state change.
type Event struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Data    Payload   `json:"data,omitempty"`
}

// MetricEntry holds per-operation counters.
type MetricEntry struct {
	Name            string    `json:"name"`
	Count           int64     `json:"count"`
	Success         int64     `json:"success"`
	Errors          int64     `json:"errors"`
	TotalDurationMs int64     `json:"total_duration_ms"`
	LastDurationMs  int64     `json:"last_duration_ms"`
	LastError       string    `json:"last_error,omitempty"`
	LastAt          time.Time `json:"last_at"`
}
