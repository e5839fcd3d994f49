// Package store persists calibration history and experiment results.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/models"
)

// ErrNoCalibration is returned when no calibration iteration matches a query.
var ErrNoCalibration = errors.New("no calibration history")

// ErrNotFound is returned when a requested experiment does not exist.
var ErrNotFound = errors.New("not found")

// CalibrationRecord is one optimizer iteration for a region.
type CalibrationRecord struct {
	Region         models.Region `json:"region"`
	MultiObjective bool          `json:"multi_objective"`
	Iteration      int           `json:"iteration"`
	Loss           float64       `json:"loss"`
	Params         models.Params `json:"params"`
}

// ExperimentRecord is the persisted header of an experiment.
type ExperimentRecord struct {
	Info       experiment.Info     `json:"info"`
	State      string              `json:"state"`
	Summary    *experiment.Summary `json:"summary,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// Store is the persistence interface used by the CLI. Implementations
// double as the orchestrator's result sink and as the calibrated
// parameter store.
type Store interface {
	experiment.ExperimentSink

	// CalibratedParams returns the parameters of the lowest-loss iteration
	// below maxIterations (all iterations when nil). Returns
	// ErrNoCalibration when nothing matches.
	CalibratedParams(ctx context.Context, region models.Region, multiObjective bool, maxIterations *int) (models.Params, error)

	// ImportCalibration upserts calibration iterations and returns the count written.
	ImportCalibration(ctx context.Context, records []CalibrationRecord) (int, error)

	// ListExperiments returns experiments, most recent first.
	ListExperiments(ctx context.Context) ([]ExperimentRecord, error)

	// GetExperiment returns one experiment or ErrNotFound.
	GetExperiment(ctx context.Context, id string) (*ExperimentRecord, error)

	// ListRuns returns the runs of an experiment ordered by scenario and repeat.
	ListRuns(ctx context.Context, experimentID string) ([]models.RunResult, error)

	Close() error
}

// bestIteration picks the lowest-loss record below the cutoff. Ties go to
// the earlier iteration.
func bestIteration(records []CalibrationRecord, maxIterations *int) (CalibrationRecord, bool) {
	var best CalibrationRecord
	found := false
	for _, r := range records {
		if maxIterations != nil && r.Iteration >= *maxIterations {
			continue
		}
		if !found || r.Loss < best.Loss || (r.Loss == best.Loss && r.Iteration < best.Iteration) {
			best = r
			found = true
		}
	}
	return best, found
}
