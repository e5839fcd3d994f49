// Package calibration resolves the calibrated baseline parameters for a
// region. A Loader fetches them at most once per experiment run.
package calibration

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/nvandessel/tracesim/internal/logging"
	"github.com/nvandessel/tracesim/internal/models"
)

// Store provides calibrated parameters. maxIterations restricts the search
// to iterations strictly below the cutoff; nil means no cutoff.
type Store interface {
	CalibratedParams(ctx context.Context, region models.Region, multiObjective bool, maxIterations *int) (models.Params, error)
}

// Cutoff decides the iteration cutoff for an area.
type Cutoff struct {
	ShortAreas    []string
	MaxIterations int
}

// MaxIterations returns the cutoff for area, or nil when the area uses its
// full calibration history.
func (c Cutoff) MaxIterations(area string) *int {
	if c.MaxIterations <= 0 || !slices.Contains(c.ShortAreas, area) {
		return nil
	}
	n := c.MaxIterations
	return &n
}

// Loader fetches calibrated parameters for one region, once.
type Loader struct {
	store          Store
	region         models.Region
	multiObjective bool
	cutoff         Cutoff
	logger         *slog.Logger

	once   sync.Once
	params models.Params
	err    error
}

// NewLoader creates a Loader. A nil logger discards output.
func NewLoader(store Store, region models.Region, multiObjective bool, cutoff Cutoff, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{
		store:          store,
		region:         region,
		multiObjective: multiObjective,
		cutoff:         cutoff,
		logger:         logger,
	}
}

// Load returns the calibrated baseline. The store is queried on the first
// call only; later calls return the same result. Failures are reported as
// StoreUnavailable.
func (l *Loader) Load(ctx context.Context) (models.Params, error) {
	l.once.Do(func() {
		l.params, l.err = l.fetch(ctx)
	})
	return l.params, l.err
}

func (l *Loader) fetch(ctx context.Context) (models.Params, error) {
	if err := l.region.Validate(); err != nil {
		return models.Params{}, err
	}
	if l.store == nil {
		return models.Params{}, &models.StoreUnavailable{Region: l.region, Cause: errors.New("no calibration store configured")}
	}

	maxIter := l.cutoff.MaxIterations(l.region.Area)
	attrs := []any{"region", l.region.String(), "multi_objective", l.multiObjective}
	if maxIter != nil {
		attrs = append(attrs, "max_iterations", *maxIter)
	}
	l.logger.Debug("loading calibrated parameters", attrs...)

	params, err := l.store.CalibratedParams(ctx, l.region, l.multiObjective, maxIter)
	if err != nil {
		var unavailable *models.StoreUnavailable
		if errors.As(err, &unavailable) {
			return models.Params{}, err
		}
		return models.Params{}, &models.StoreUnavailable{Region: l.region, Cause: err}
	}
	if params.Len() == 0 {
		return models.Params{}, &models.StoreUnavailable{Region: l.region, Cause: errors.New("calibration has no parameters")}
	}

	l.logger.Info("loaded calibrated parameters", "region", l.region.String(), "count", params.Len())
	return params, nil
}
