package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the drover API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// LaneRow is the dashboard view of a lane.
type LaneRow struct {
	ID         string `json:"id"`
	QueueDepth int    `json:"queue_depth"`
	Active     bool   `json:"active"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	Cancelled  int64  `json:"cancelled"`
}

// JobRow is the dashboard view of a job.
type JobRow struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	LaneID     string `json:"lane_id"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error"`
}

// EventRow is the dashboard view of an event.
type EventRow struct {
	ID      int64  `json:"id"`
	At      string `json:"at"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Lanes fetches lane summaries.
func (c *Client) Lanes() ([]LaneRow, error) {
	var lanes []LaneRow
	if err := c.getJSON("/lanes", &lanes); err != nil {
		return nil, err
	}
	return lanes, nil
}

// Jobs fetches job summaries, newest first.
func (c *Client) Jobs() ([]JobRow, error) {
	var jobs []JobRow
	if err := c.getJSON("/jobs", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Events fetches the most recent events.
func (c *Client) Events(limit int) ([]EventRow, error) {
	var events []EventRow
	if err := c.getJSON(fmt.Sprintf("/events/history?limit=%d", limit), &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s", string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
