package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunKey identifies one repeat of one scenario.
type RunKey struct {
	ScenarioID string `json:"scenario_id"`
	Repeat     int    `json:"repeat"`
}

func (k RunKey) String() string {
	return fmt.Sprintf("%s#%d", k.ScenarioID, k.Repeat)
}

// Trajectory is the engine's output for one run. Handle points at the
// persisted raw output when the engine stores it elsewhere; Data carries
// inline output.
type Trajectory struct {
	Handle string          `json:"handle,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RunResult is either a trajectory or a failure for one RunKey.
type RunResult struct {
	Key        RunKey        `json:"key"`
	Seed       int64         `json:"seed"`
	ParamsHash string        `json:"params_hash,omitempty"`
	Trajectory *Trajectory   `json:"trajectory,omitempty"`
	Failure    *RunFailure   `json:"failure,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Succeeded reports whether the run produced a trajectory.
func (r RunResult) Succeeded() bool {
	return r.Failure == nil && r.Trajectory != nil
}

// Status returns "succeeded", "failed" or "cancelled".
func (r RunResult) Status() string {
	switch {
	case r.Failure == nil:
		return "succeeded"
	case r.Failure.Cancelled:
		return "cancelled"
	default:
		return "failed"
	}
}
