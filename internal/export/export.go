// Package export writes persisted experiment results to portable archive
// files and reads them back.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/tracesim/internal/models"
	"github.com/nvandessel/tracesim/internal/store"
)

// Archive is the payload of an export file.
type Archive struct {
	Version    int                    `json:"version"`
	CreatedAt  time.Time              `json:"created_at"`
	Experiment store.ExperimentRecord `json:"experiment"`
	Runs       []models.RunResult     `json:"runs"`
}

// Source is the subset of store.Store an export reads from.
type Source interface {
	GetExperiment(ctx context.Context, id string) (*store.ExperimentRecord, error)
	ListRuns(ctx context.Context, experimentID string) ([]models.RunResult, error)
}

// Export collects an experiment and its runs and writes them to outputPath.
func Export(ctx context.Context, src Source, experimentID, outputPath string) (*Archive, error) {
	rec, err := src.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}

	runs, err := src.ListRuns(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", experimentID, err)
	}

	archive := &Archive{
		Version:    FormatVersion,
		CreatedAt:  time.Now().UTC(),
		Experiment: *rec,
		Runs:       runs,
	}
	if err := Write(outputPath, archive); err != nil {
		return nil, err
	}
	return archive, nil
}

// GeneratePath creates a timestamped export filename in dir.
func GeneratePath(dir, experimentID string) string {
	ts := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("tracesim-%s-%s.json.gz", experimentID, ts))
}
