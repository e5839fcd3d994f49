package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/models"
)

// DryRunEngine echoes the dispatched configuration instead of simulating.
// It exercises the full orchestration path without an external simulator.
type DryRunEngine struct{}

// dryRunOutput is the trajectory data produced by DryRunEngine.
type dryRunOutput struct {
	Seed       int64   `json:"seed"`
	Horizon    float64 `json:"horizon"`
	Measures   int     `json:"measures"`
	ParamsHash string  `json:"params_hash"`
}

// Simulate implements experiment.Engine.
func (DryRunEngine) Simulate(ctx context.Context, req experiment.Request) (*models.Trajectory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(dryRunOutput{
		Seed:       req.Seed,
		Horizon:    req.Horizon,
		Measures:   len(req.Measures),
		ParamsHash: req.Params.Hash(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling dry-run output: %w", err)
	}
	return &models.Trajectory{
		Handle: fmt.Sprintf("dry-run://%s/%s", req.ExperimentID, req.Key),
		Data:   data,
	}, nil
}
