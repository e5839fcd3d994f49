package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/models"
)

// MemoryStore is an in-memory Store for testing and dry runs.
type MemoryStore struct {
	mu          sync.RWMutex
	calibration []CalibrationRecord
	experiments map[string]*ExperimentRecord
	runs        map[string]map[models.RunKey]models.RunResult
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*ExperimentRecord),
		runs:        make(map[string]map[models.RunKey]models.RunResult),
	}
}

// StartExperiment implements experiment.ExperimentSink.
func (m *MemoryStore) StartExperiment(ctx context.Context, info experiment.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.experiments[info.ID]; exists {
		return fmt.Errorf("experiment %s already exists", info.ID)
	}
	ids := make([]string, len(info.ScenarioIDs))
	copy(ids, info.ScenarioIDs)
	info.ScenarioIDs = ids
	m.experiments[info.ID] = &ExperimentRecord{
		Info:      info,
		State:     experiment.StateRunning.String(),
		StartedAt: time.Now().UTC(),
	}
	return nil
}

// FinishExperiment implements experiment.ExperimentSink.
func (m *MemoryStore) FinishExperiment(ctx context.Context, experimentID string, state experiment.State, summary experiment.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.experiments[experimentID]
	if !ok {
		return fmt.Errorf("experiment %s: %w", experimentID, ErrNotFound)
	}
	now := time.Now().UTC()
	rec.State = state.String()
	rec.Summary = &summary
	rec.FinishedAt = &now
	return nil
}

// RecordRun implements experiment.ResultSink.
func (m *MemoryStore) RecordRun(ctx context.Context, experimentID string, result models.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs, ok := m.runs[experimentID]
	if !ok {
		runs = make(map[models.RunKey]models.RunResult)
		m.runs[experimentID] = runs
	}
	runs[result.Key] = result
	return nil
}

// ListRuns returns the runs of an experiment ordered by scenario and repeat.
func (m *MemoryStore) ListRuns(ctx context.Context, experimentID string) ([]models.RunResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.RunResult, 0, len(m.runs[experimentID]))
	for _, r := range m.runs[experimentID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.ScenarioID != out[j].Key.ScenarioID {
			return out[i].Key.ScenarioID < out[j].Key.ScenarioID
		}
		return out[i].Key.Repeat < out[j].Key.Repeat
	})
	return out, nil
}

// ListExperiments returns experiments, most recent first.
func (m *MemoryStore) ListExperiments(ctx context.Context) ([]ExperimentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ExperimentRecord, 0, len(m.experiments))
	for _, rec := range m.experiments {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// GetExperiment returns one experiment or ErrNotFound.
func (m *MemoryStore) GetExperiment(ctx context.Context, id string) (*ExperimentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.experiments[id]
	if !ok {
		return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// ImportCalibration upserts calibration iterations.
func (m *MemoryStore) ImportCalibration(ctx context.Context, records []CalibrationRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if err := r.Region.Validate(); err != nil {
			return 0, err
		}
		replaced := false
		for i, existing := range m.calibration {
			if existing.Region == r.Region && existing.MultiObjective == r.MultiObjective && existing.Iteration == r.Iteration {
				m.calibration[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			m.calibration = append(m.calibration, r)
		}
	}
	return len(records), nil
}

// CalibratedParams returns the lowest-loss iteration below maxIterations.
func (m *MemoryStore) CalibratedParams(ctx context.Context, region models.Region, multiObjective bool, maxIterations *int) (models.Params, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matching []CalibrationRecord
	for _, r := range m.calibration {
		if r.Region == region && r.MultiObjective == multiObjective {
			matching = append(matching, r)
		}
	}
	best, ok := bestIteration(matching, maxIterations)
	if !ok {
		return models.Params{}, fmt.Errorf("%s: %w", region, ErrNoCalibration)
	}
	return best.Params, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
