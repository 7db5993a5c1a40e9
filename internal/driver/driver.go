// Package driver defines the device-automation executor contract for drover.
package driver

import (
	"context"
	"fmt"

	"github.com/averros/drover/internal/models"
)

// Executor performs a job's device action and returns its result. The
// scheduler invokes Execute exactly once per job attempt; a returned error
// marks the attempt failed. Timeouts on the underlying device action belong
// to the executor, not the scheduler.
type Executor interface {
	Execute(ctx context.Context, job *models.Job) (models.Payload, error)
}

// StringField extracts a required string value from a job input.
func StringField(input models.Payload, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", fmt.Errorf("input field %q is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("input field %q must be a non-empty string", key)
	}
	return s, nil
}
