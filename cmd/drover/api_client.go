package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiTimeout bounds every CLI call to the daemon.
const apiTimeout = 10 * time.Second

var apiClient = &http.Client{Timeout: apiTimeout}

// apiGet fetches path from the daemon and decodes the JSON response into out.
func apiGet(path string, out interface{}) error {
	resp, err := apiClient.Get(apiAddr + path)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	return decodeResponse(resp, out)
}

// apiPost sends body as JSON to path and decodes the response into out.
// body and out may each be nil.
func apiPost(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := apiClient.Post(apiAddr+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
