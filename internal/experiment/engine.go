package experiment

import (
	"context"

	"github.com/nvandessel/tracesim/internal/models"
)

// Request is everything the simulation engine needs for one stochastic run.
type Request struct {
	ExperimentID string               `json:"experiment_id"`
	Region       models.Region        `json:"region"`
	Key          models.RunKey        `json:"key"`
	Seed         int64                `json:"seed"`
	Horizon      float64              `json:"horizon"` // hours
	Measures     []models.MeasureSpec `json:"measures"`
	Params       models.Params        `json:"params"`

	ExpectedDailyBaseExpoPer100k float64 `json:"expected_daily_base_expo_per100k"`
	FullScale                    bool    `json:"full_scale"`
}

// Engine executes one stochastic simulation run. An error is treated as
// the failure of that run only.
type Engine interface {
	Simulate(ctx context.Context, req Request) (*models.Trajectory, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req Request) (*models.Trajectory, error)

// Simulate calls f.
func (f EngineFunc) Simulate(ctx context.Context, req Request) (*models.Trajectory, error) {
	return f(ctx, req)
}

// ResultSink receives every run result as soon as it is known. Results
// arrive in completion order; sinks must key them by RunKey.
type ResultSink interface {
	RecordRun(ctx context.Context, experimentID string, result models.RunResult) error
}

// Info describes an experiment at the moment it starts running.
type Info struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Region      models.Region `json:"region"`
	Seed        int64         `json:"seed"`
	Repeats     int           `json:"repeats"`
	Parallelism int           `json:"parallelism"`
	Horizon     float64       `json:"horizon"`
	ScenarioIDs []string      `json:"scenario_ids"`
}

// ExperimentSink is implemented by sinks that also track experiment-level
// state.
type ExperimentSink interface {
	ResultSink
	StartExperiment(ctx context.Context, info Info) error
	FinishExperiment(ctx context.Context, experimentID string, state State, summary Summary) error
}
