// Package archive provides SQLite-backed, best-effort persistence of drover
// events and finished jobs. The scheduler never reads this data back; it
// exists for operators and post-mortem digging.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/averros/drover/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Archive appends events and job runs to a local SQLite database.
type Archive struct {
	db *sql.DB
}

// New opens (or creates) the archive database and runs migrations.
func New(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode keeps readers out of the writer's way.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Ping checks the database connection is alive.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		at DATETIME NOT NULL,
		type TEXT NOT NULL,
		message TEXT,
		data TEXT
	);

	CREATE TABLE IF NOT EXISTS job_runs (
		id TEXT PRIMARY KEY,
		job_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		lane_id TEXT NOT NULL,
		device_id TEXT,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		finished_at DATETIME,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		input TEXT,
		result TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_seq ON events(seq);
	CREATE INDEX IF NOT EXISTS idx_job_runs_job_id ON job_runs(job_id);
	CREATE INDEX IF NOT EXISTS idx_job_runs_lane_id ON job_runs(lane_id);
	`

	_, err := a.db.Exec(schema)
	return err
}

// AppendEvent durably appends one event.
func (a *Archive) AppendEvent(ev models.Event) error {
	data, err := marshalPayload(ev.Data)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(
		`INSERT INTO events (id, seq, at, type, message, data) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), ev.ID, ev.At, ev.Type, ev.Message, data,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecordJob archives a job that reached a terminal state. In-memory job ids
// restart with the process, so rows carry their own surrogate key.
func (a *Archive) RecordJob(job models.Job) error {
	input, err := marshalPayload(job.Input)
	if err != nil {
		return err
	}
	result, err := marshalPayload(job.Result)
	if err != nil {
		return err
	}

	_, err = a.db.Exec(
		`INSERT INTO job_runs (id, job_id, type, lane_id, device_id, status, created_at, started_at, finished_at, duration_ms, input, result, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), job.ID, job.Type, job.LaneID, job.DeviceID, job.Status,
		job.CreatedAt, nullableTime(job.StartedAt), nullableTime(job.FinishedAt),
		job.DurationMs, input, result, job.Error,
	)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

// RecentEvents returns the most recently archived events, oldest first.
func (a *Archive) RecentEvents(limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.Query(
		`SELECT seq, at, type, message, data FROM events ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var data sql.NullString
		if err := rows.Scan(&ev.ID, &ev.At, &ev.Type, &ev.Message, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &ev.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, ev)
	}
	// Flip to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// RecentJobRuns returns the most recently archived job runs, newest first.
func (a *Archive) RecentJobRuns(limit int) ([]models.JobSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.Query(
		`SELECT job_id, type, lane_id, device_id, status, created_at, duration_ms, error
		 FROM job_runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()

	var out []models.JobSummary
	for rows.Next() {
		var js models.JobSummary
		var deviceID, errMsg sql.NullString
		if err := rows.Scan(&js.ID, &js.Type, &js.LaneID, &deviceID, &js.Status, &js.CreatedAt, &js.DurationMs, &errMsg); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		js.DeviceID = deviceID.String
		js.Error = errMsg.String
		out = append(out, js)
	}
	return out, rows.Err()
}

func marshalPayload(p models.Payload) (string, error) {
	if p == nil {
		return "", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
