package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func calibrationRecords(region models.Region) []CalibrationRecord {
	return []CalibrationRecord{
		{Region: region, Iteration: 0, Loss: 9.5, Params: models.NewParams(map[string]float64{"beta_site": 0.1, "beta_household": 0.2})},
		{Region: region, Iteration: 12, Loss: 3.1, Params: models.NewParams(map[string]float64{"beta_site": 0.3, "beta_household": 0.4})},
		{Region: region, Iteration: 57, Loss: 1.2, Params: models.NewParams(map[string]float64{"beta_site": 0.5, "beta_household": 0.6})},
		{Region: region, MultiObjective: true, Iteration: 3, Loss: 0.5, Params: models.NewParams(map[string]float64{"beta_site": 0.7, "beta_household": 0.8})},
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()

	s, err := NewSQLiteStore(tmpDir)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	dbPath := filepath.Join(tmpDir, ".tracesim", "tracesim.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("tracesim.db was not created")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", s.Path(), dbPath)
	}
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	region := models.Region{Country: "CH", Area: "BE"}

	s, err := NewSQLiteStore(tmpDir)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if _, err := s.ImportCalibration(ctx, calibrationRecords(region)); err != nil {
		t.Fatalf("ImportCalibration() error = %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(tmpDir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.CalibratedParams(ctx, region, false, nil); err != nil {
		t.Errorf("CalibratedParams() after reopen error = %v", err)
	}
}

func TestSQLiteStore_CalibratedParams(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	region := models.Region{Country: "CH", Area: "BE"}

	n, err := s.ImportCalibration(ctx, calibrationRecords(region))
	if err != nil {
		t.Fatalf("ImportCalibration() error = %v", err)
	}
	if n != 4 {
		t.Errorf("ImportCalibration() = %d, want 4", n)
	}

	forty := 40
	tests := []struct {
		name           string
		multiObjective bool
		maxIterations  *int
		wantBetaSite   float64
	}{
		{"best overall", false, nil, 0.5},
		{"cutoff excludes later iterations", false, &forty, 0.3},
		{"multi objective history", true, nil, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := s.CalibratedParams(ctx, region, tt.multiObjective, tt.maxIterations)
			if err != nil {
				t.Fatalf("CalibratedParams() error = %v", err)
			}
			got, err := params.Float("beta_site")
			if err != nil {
				t.Fatalf("Float(beta_site) error = %v", err)
			}
			if got != tt.wantBetaSite {
				t.Errorf("beta_site = %v, want %v", got, tt.wantBetaSite)
			}
		})
	}
}

func TestSQLiteStore_CalibratedParams_Missing(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.CalibratedParams(ctx, models.Region{Country: "CH", Area: "ZH"}, false, nil)
	if !errors.Is(err, ErrNoCalibration) {
		t.Errorf("expected ErrNoCalibration, got %v", err)
	}

	zero := 0
	if _, err := s.ImportCalibration(ctx, calibrationRecords(models.Region{Country: "CH", Area: "ZH"})); err != nil {
		t.Fatalf("ImportCalibration() error = %v", err)
	}
	_, err = s.CalibratedParams(ctx, models.Region{Country: "CH", Area: "ZH"}, false, &zero)
	if !errors.Is(err, ErrNoCalibration) {
		t.Errorf("expected ErrNoCalibration with zero cutoff, got %v", err)
	}
}

func TestSQLiteStore_ImportCalibration_Upsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	region := models.Region{Country: "DE", Area: "TU"}

	first := []CalibrationRecord{{Region: region, Iteration: 1, Loss: 2, Params: models.NewParams(map[string]float64{"beta_site": 1})}}
	second := []CalibrationRecord{{Region: region, Iteration: 1, Loss: 2, Params: models.NewParams(map[string]float64{"beta_site": 2})}}
	if _, err := s.ImportCalibration(ctx, first); err != nil {
		t.Fatalf("ImportCalibration(first) error = %v", err)
	}
	if _, err := s.ImportCalibration(ctx, second); err != nil {
		t.Fatalf("ImportCalibration(second) error = %v", err)
	}

	params, err := s.CalibratedParams(ctx, region, false, nil)
	if err != nil {
		t.Fatalf("CalibratedParams() error = %v", err)
	}
	if v, _ := params.Float("beta_site"); v != 2 {
		t.Errorf("beta_site = %v, want 2 after upsert", v)
	}
}

func TestSQLiteStore_ImportCalibration_InvalidRegion(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.ImportCalibration(context.Background(), []CalibrationRecord{{Region: models.Region{Country: "CH"}}})
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestSQLiteStore_ExperimentLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	info := experiment.Info{
		ID:          "exp-1",
		Name:        "tracing-CH-BE",
		Region:      models.Region{Country: "CH", Area: "BE"},
		Seed:        7,
		Repeats:     2,
		Parallelism: 4,
		Horizon:     2880,
		ScenarioIDs: []string{"isolate|delay=3|contacts=none|policy=none"},
	}
	if err := s.StartExperiment(ctx, info); err != nil {
		t.Fatalf("StartExperiment() error = %v", err)
	}

	key0 := models.RunKey{ScenarioID: info.ScenarioIDs[0], Repeat: 0}
	key1 := models.RunKey{ScenarioID: info.ScenarioIDs[0], Repeat: 1}
	ok := models.RunResult{
		Key:        key0,
		Seed:       11,
		ParamsHash: "abc",
		Trajectory: &models.Trajectory{Handle: "file://out/0", Data: json.RawMessage(`{"infected":3}`)},
		Duration:   1500 * time.Millisecond,
	}
	failed := models.RunResult{
		Key:     key1,
		Seed:    12,
		Failure: models.NewRunFailure(key1, 12, errors.New("engine crashed")),
	}

	// Record out of order to check results are keyed, not appended.
	if err := s.RecordRun(ctx, info.ID, failed); err != nil {
		t.Fatalf("RecordRun(failed) error = %v", err)
	}
	if err := s.RecordRun(ctx, info.ID, ok); err != nil {
		t.Fatalf("RecordRun(ok) error = %v", err)
	}

	summary := experiment.Summary{Total: 2, Succeeded: 1, Failed: 1, FailedKeys: []models.RunKey{key1}}
	if err := s.FinishExperiment(ctx, info.ID, experiment.StateCompleted, summary); err != nil {
		t.Fatalf("FinishExperiment() error = %v", err)
	}

	runs, err := s.ListRuns(ctx, info.ID)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() returned %d runs, want 2", len(runs))
	}
	if runs[0].Key != key0 || runs[1].Key != key1 {
		t.Errorf("runs not ordered by repeat: %v, %v", runs[0].Key, runs[1].Key)
	}
	if !runs[0].Succeeded() {
		t.Error("expected run 0 to be succeeded")
	}
	if runs[0].Trajectory.Handle != "file://out/0" || string(runs[0].Trajectory.Data) != `{"infected":3}` {
		t.Errorf("trajectory round trip = %+v", runs[0].Trajectory)
	}
	if runs[0].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", runs[0].Duration)
	}
	if runs[1].Status() != "failed" || runs[1].Failure.Message != "engine crashed" {
		t.Errorf("failure round trip = %+v", runs[1].Failure)
	}

	rec, err := s.GetExperiment(ctx, info.ID)
	if err != nil {
		t.Fatalf("GetExperiment() error = %v", err)
	}
	if rec.State != "completed" {
		t.Errorf("State = %s, want completed", rec.State)
	}
	if rec.Summary == nil || rec.Summary.Failed != 1 {
		t.Errorf("Summary = %+v, want 1 failed", rec.Summary)
	}
	if rec.FinishedAt == nil {
		t.Error("expected FinishedAt to be set")
	}
	if len(rec.Info.ScenarioIDs) != 1 || rec.Info.Region.Area != "BE" {
		t.Errorf("Info round trip = %+v", rec.Info)
	}

	list, err := s.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("ListExperiments() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListExperiments() returned %d, want 1", len(list))
	}
}

func TestSQLiteStore_GetExperiment_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.GetExperiment(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	err = s.FinishExperiment(context.Background(), "missing", experiment.StateFailed, experiment.Summary{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishExperiment: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_RecordRun_Overwrites(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	if err := s.StartExperiment(ctx, experiment.Info{ID: "e", Name: "n", Region: models.Region{Country: "CH", Area: "TI"}, Repeats: 1, Parallelism: 1, Horizon: 24}); err != nil {
		t.Fatalf("StartExperiment() error = %v", err)
	}

	key := models.RunKey{ScenarioID: "s", Repeat: 0}
	cancelled := models.NewRunFailure(key, 1, context.Canceled)
	cancelled.Cancelled = true
	if err := s.RecordRun(ctx, "e", models.RunResult{Key: key, Seed: 1, Failure: cancelled}); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if err := s.RecordRun(ctx, "e", models.RunResult{Key: key, Seed: 1, Trajectory: &models.Trajectory{Handle: "h"}}); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	runs, err := s.ListRuns(ctx, "e")
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || !runs[0].Succeeded() {
		t.Errorf("expected one succeeded run, got %+v", runs)
	}
}
