// Package bridge executes drover jobs through an external device-bridge CLI
// (an adb-compatible tool).
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/averros/drover/internal/driver"
	"github.com/averros/drover/internal/models"
	"github.com/google/uuid"
)

// Config configures the bridge executor.
type Config struct {
	// Binary is the device-bridge executable, e.g. "adb".
	Binary string
	// SerialFlag selects a target device, e.g. "-s".
	SerialFlag string
	// Timeout bounds a single bridge invocation.
	Timeout time.Duration
	// WorkflowsDir holds named workflow definitions as YAML files.
	WorkflowsDir string
}

// DefaultConfig returns the stock bridge configuration.
func DefaultConfig() Config {
	return Config{
		Binary:     "adb",
		SerialFlag: "-s",
		Timeout:    60 * time.Second,
	}
}

// Bridge implements driver.Executor over a device-bridge CLI.
type Bridge struct {
	cfg Config
}

// New creates a Bridge executor.
func New(cfg Config) *Bridge {
	if cfg.Binary == "" {
		cfg.Binary = "adb"
	}
	if cfg.SerialFlag == "" {
		cfg.SerialFlag = "-s"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Bridge{cfg: cfg}
}

// Execute dispatches on the job type and returns the action's result.
func (b *Bridge) Execute(ctx context.Context, job *models.Job) (models.Payload, error) {
	attemptID := uuid.New().String()

	var (
		result models.Payload
		err    error
	)
	switch job.Type {
	case models.JobTypeOpenURL:
		result, err = b.openURL(ctx, job)
	case models.JobTypeSnapshotSuite:
		result, err = b.snapshotSuite(ctx, job)
	case models.JobTypeStressRun:
		result, err = b.stressRun(ctx, job)
	case models.JobTypeWorkflowRun:
		result, err = b.workflowRun(ctx, job)
	case models.JobTypeDeviceProfile:
		result, err = b.deviceProfile(ctx, job)
	default:
		return nil, fmt.Errorf("bridge has no handler for job type %q", job.Type)
	}
	if err != nil {
		return nil, err
	}

	result["attempt_id"] = attemptID
	return result, nil
}

func (b *Bridge) openURL(ctx context.Context, job *models.Job) (models.Payload, error) {
	url, err := driver.StringField(job.Input, "url")
	if err != nil {
		return nil, err
	}
	out, err := b.run(ctx, job.DeviceID, "shell", "am", "start", "-a", "android.intent.action.VIEW", "-d", url)
	if err != nil {
		return nil, err
	}
	return models.Payload{"url": url, "output": out}, nil
}

// snapshotSuite collects a diagnostic snapshot: system properties, battery
// state and storage usage.
func (b *Bridge) snapshotSuite(ctx context.Context, job *models.Job) (models.Payload, error) {
	sections := []struct {
		name string
		args []string
	}{
		{"properties", []string{"shell", "getprop"}},
		{"battery", []string{"shell", "dumpsys", "battery"}},
		{"storage", []string{"shell", "df"}},
	}

	snapshot := models.Payload{}
	for _, sec := range sections {
		out, err := b.run(ctx, job.DeviceID, sec.args...)
		if err != nil {
			return nil, fmt.Errorf("snapshot section %s: %w", sec.name, err)
		}
		snapshot[sec.name] = out
	}
	return models.Payload{"snapshot": map[string]interface{}(snapshot)}, nil
}

func (b *Bridge) stressRun(ctx context.Context, job *models.Job) (models.Payload, error) {
	events := intField(job.Input, "events", 500)
	args := []string{"shell", "monkey"}
	if pkg, ok := job.Input["package"].(string); ok && pkg != "" {
		args = append(args, "-p", pkg)
	}
	args = append(args, "--throttle", "100", strconv.Itoa(events))

	out, err := b.run(ctx, job.DeviceID, args...)
	if err != nil {
		return nil, err
	}
	return models.Payload{"events": events, "output": out}, nil
}

func (b *Bridge) deviceProfile(ctx context.Context, job *models.Job) (models.Payload, error) {
	props := map[string]string{
		"model":        "ro.product.model",
		"manufacturer": "ro.product.manufacturer",
		"os_version":   "ro.build.version.release",
		"sdk":          "ro.build.version.sdk",
		"abi":          "ro.product.cpu.abi",
	}

	profile := models.Payload{}
	for field, prop := range props {
		out, err := b.run(ctx, job.DeviceID, "shell", "getprop", prop)
		if err != nil {
			return nil, fmt.Errorf("profile field %s: %w", field, err)
		}
		profile[field] = strings.TrimSpace(out)
	}
	return models.Payload{"profile": map[string]interface{}(profile)}, nil
}

// run invokes the bridge binary with its own timeout. A non-zero exit code
// is an error carrying the stderr tail.
func (b *Bridge) run(ctx context.Context, deviceID string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	full := make([]string, 0, len(args)+2)
	if deviceID != "" {
		full = append(full, b.cfg.SerialFlag, deviceID)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(runCtx, b.cfg.Binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%s exited %d: %s", b.cfg.Binary, exitErr.ExitCode(), firstLine(stderr.String()))
		}
		return "", fmt.Errorf("run %s: %w", b.cfg.Binary, err)
	}
	return stdout.String(), nil
}

func intField(input models.Payload, key string, fallback int) int {
	switch v := input[key].(type) {
	case int:
		return v
	case float64:
		// JSON numbers decode as float64.
		return int(v)
	}
	return fallback
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
