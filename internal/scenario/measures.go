package scenario

import (
	"github.com/nvandessel/tracesim/internal/constants"
	"github.com/nvandessel/tracesim/internal/models"
)

// MeasureOptions controls the probability and isolation duration shared by
// all measures of a scenario.
type MeasureOptions struct {
	Probability       float64 // in [0, 1]
	IsolationDuration float64 // hours
}

// DefaultMeasureOptions returns full compliance with a 14-day isolation.
func DefaultMeasureOptions() MeasureOptions {
	return MeasureOptions{
		Probability:       constants.DefaultMeasureProbability,
		IsolationDuration: constants.DefaultIsolationDays * constants.HoursPerDay,
	}
}

// BuildMeasures returns exactly one measure per supported kind, in
// canonical order, each active over [0, horizon). The policy is accepted
// so that finer per-policy windows can be introduced without changing
// callers; the reference policy set uses the same window for every kind.
func BuildMeasures(horizon float64, policy models.Policy, opts MeasureOptions) ([]models.MeasureSpec, error) {
	if horizon <= 0 {
		return nil, models.NewConfigurationError("horizon", "simulation period must be positive, got %g hours", horizon)
	}
	if opts.Probability < 0 || opts.Probability > 1 {
		return nil, models.NewConfigurationError("measures.probability", "must be between 0 and 1, got %g", opts.Probability)
	}
	if opts.IsolationDuration < 0 {
		return nil, models.NewConfigurationError("measures.isolation_duration", "must be non-negative, got %g", opts.IsolationDuration)
	}

	window, err := models.NewTimeWindow(0, horizon)
	if err != nil {
		return nil, err
	}

	kinds := models.MeasureKinds()
	measures := make([]models.MeasureSpec, 0, len(kinds))
	for _, kind := range kinds {
		m := models.MeasureSpec{
			Kind:              kind,
			Window:            window,
			Probability:       opts.Probability,
			IsolationDuration: opts.IsolationDuration,
		}
		if err := m.Validate(horizon); err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}
	return measures, nil
}
