// Package engine provides SimulationEngine adapters for the experiment
// orchestrator.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/models"
)

// maxStderrTail bounds the stderr excerpt carried in run failures.
const maxStderrTail = 2048

// waitDelay bounds how long Simulate waits for output pipes after the
// simulator has been killed.
const waitDelay = 2 * time.Second

// ProcessEngine runs an external simulator executable once per run.
// The request is written as JSON to the simulator's stdin; the simulator
// writes a trajectory as JSON to stdout and exits 0. Any other exit is a
// failure of that run only.
type ProcessEngine struct {
	// command is the simulator executable.
	command string

	// args are passed to every invocation.
	args []string

	// dir is the working directory of the simulator, "" for the current one.
	dir string

	// timeout bounds a single run; 0 disables it.
	timeout time.Duration
}

// ProcessConfig configures a ProcessEngine.
type ProcessConfig struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// NewProcessEngine creates a ProcessEngine. The command must be set.
func NewProcessEngine(cfg ProcessConfig) (*ProcessEngine, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, models.NewConfigurationError("engine.command", "is required")
	}
	args := make([]string, len(cfg.Args))
	copy(args, cfg.Args)
	return &ProcessEngine{
		command: cfg.Command,
		args:    args,
		dir:     cfg.Dir,
		timeout: cfg.Timeout,
	}, nil
}

// Simulate implements experiment.Engine.
func (e *ProcessEngine) Simulate(ctx context.Context, req experiment.Request) (*models.Trajectory, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Dir = e.dir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(),
		"TRACESIM_EXPERIMENT="+req.ExperimentID,
		"TRACESIM_SCENARIO="+req.Key.ScenarioID,
		"TRACESIM_REPEAT="+strconv.Itoa(req.Key.Repeat),
		"TRACESIM_SEED="+strconv.FormatInt(req.Seed, 10),
	)

	// Pass the request via stdin; parameter sets are too large for argv.
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("simulator timed out after %v", e.timeout)
		}
		return nil, fmt.Errorf("simulator failed: %w (stderr: %s)", err, tail(stderr.String(), maxStderrTail))
	}

	return ParseTrajectory(stdout.Bytes())
}

// ParseTrajectory decodes simulator output. A JSON object with a "handle"
// or "data" field is taken as a Trajectory; any other JSON document becomes
// the trajectory data.
func ParseTrajectory(out []byte) (*models.Trajectory, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("simulator returned empty output")
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("simulator output is not valid JSON: %s", tail(string(out), 256))
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(out, &probe); err == nil {
		_, hasHandle := probe["handle"]
		_, hasData := probe["data"]
		if hasHandle || hasData {
			var traj models.Trajectory
			if err := json.Unmarshal(out, &traj); err != nil {
				return nil, fmt.Errorf("parsing trajectory: %w", err)
			}
			return &traj, nil
		}
	}

	data := make(json.RawMessage, len(out))
	copy(data, out)
	return &models.Trajectory{Data: data}, nil
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
