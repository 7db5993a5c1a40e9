package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/averros/drover/internal/driver"
	"github.com/averros/drover/internal/models"
	"gopkg.in/yaml.v3"
)

// Workflow is a named multi-step automation sequence. Definitions live as
// <name>.yaml files under the configured workflows directory.
type Workflow struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step is one workflow action. Supported actions: tap, swipe, text, key,
// open_url, pause_ms.
type Step struct {
	Action string   `yaml:"action"`
	Args   []string `yaml:"args,omitempty"`
}

func (b *Bridge) workflowRun(ctx context.Context, job *models.Job) (models.Payload, error) {
	name, err := driver.StringField(job.Input, "workflow")
	if err != nil {
		return nil, err
	}

	wf, err := b.resolveWorkflow(name)
	if err != nil {
		return nil, err
	}

	executed := 0
	for i, step := range wf.Steps {
		if err := b.runStep(ctx, job.DeviceID, step); err != nil {
			return nil, fmt.Errorf("workflow %q step %d (%s): %w", name, i+1, step.Action, err)
		}
		executed++
	}

	return models.Payload{"workflow": name, "steps_executed": executed}, nil
}

// resolveWorkflow loads a workflow definition by name.
func (b *Bridge) resolveWorkflow(name string) (*Workflow, error) {
	if b.cfg.WorkflowsDir == "" {
		return nil, fmt.Errorf("no workflows directory configured")
	}
	path := filepath.Join(b.cfg.WorkflowsDir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("unknown workflow %q", name)
		}
		return nil, fmt.Errorf("reading workflow %q: %w", name, err)
	}

	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing workflow %q: %w", name, err)
	}
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", name)
	}
	return &wf, nil
}

func (b *Bridge) runStep(ctx context.Context, deviceID string, step Step) error {
	switch step.Action {
	case "tap":
		if len(step.Args) != 2 {
			return fmt.Errorf("tap needs x and y")
		}
		_, err := b.run(ctx, deviceID, "shell", "input", "tap", step.Args[0], step.Args[1])
		return err
	case "swipe":
		if len(step.Args) != 4 {
			return fmt.Errorf("swipe needs x1 y1 x2 y2")
		}
		args := append([]string{"shell", "input", "swipe"}, step.Args...)
		_, err := b.run(ctx, deviceID, args...)
		return err
	case "text":
		if len(step.Args) != 1 {
			return fmt.Errorf("text needs one argument")
		}
		_, err := b.run(ctx, deviceID, "shell", "input", "text", step.Args[0])
		return err
	case "key":
		if len(step.Args) != 1 {
			return fmt.Errorf("key needs one keycode")
		}
		_, err := b.run(ctx, deviceID, "shell", "input", "keyevent", step.Args[0])
		return err
	case "open_url":
		if len(step.Args) != 1 {
			return fmt.Errorf("open_url needs one url")
		}
		_, err := b.run(ctx, deviceID, "shell", "am", "start", "-a", "android.intent.action.VIEW", "-d", step.Args[0])
		return err
	case "pause_ms":
		if len(step.Args) != 1 {
			return fmt.Errorf("pause_ms needs one duration")
		}
		ms, err := strconv.Atoi(step.Args[0])
		if err != nil || ms < 0 {
			return fmt.Errorf("pause_ms needs a non-negative integer")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return nil
		}
	default:
		return fmt.Errorf("unsupported action %q", step.Action)
	}
}
