package models

import "fmt"

// MeasureKind identifies a behavioral intervention applied by the simulator.
type MeasureKind string

const (
	// MeasureSmartTracingIsolation isolates individuals reached by contact tracing.
	MeasureSmartTracingIsolation MeasureKind = "social_distancing_for_smart_tracing"

	// MeasureSmartTracingHousehold isolates the households of traced individuals.
	MeasureSmartTracingHousehold MeasureKind = "social_distancing_for_smart_tracing_household"

	// MeasureSymptomaticAfterTracing isolates traced individuals once they show symptoms.
	MeasureSymptomaticAfterTracing MeasureKind = "social_distancing_symptomatic_after_smart_tracing"

	// MeasureSymptomaticAfterTracingHousehold isolates households of traced
	// individuals once they show symptoms.
	MeasureSymptomaticAfterTracingHousehold MeasureKind = "social_distancing_symptomatic_after_smart_tracing_household"
)

// MeasureKinds lists every supported kind in canonical order.
func MeasureKinds() []MeasureKind {
	return []MeasureKind{
		MeasureSmartTracingIsolation,
		MeasureSmartTracingHousehold,
		MeasureSymptomaticAfterTracing,
		MeasureSymptomaticAfterTracingHousehold,
	}
}

// Valid returns true if the kind is a recognized value.
func (k MeasureKind) Valid() bool {
	for _, known := range MeasureKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Household reports whether the measure isolates whole households
// rather than individuals.
func (k MeasureKind) Household() bool {
	return k == MeasureSmartTracingHousehold || k == MeasureSymptomaticAfterTracingHousehold
}

// MeasureSpec is a declarative, time-windowed behavioral rule.
type MeasureSpec struct {
	Kind              MeasureKind `json:"kind" yaml:"kind"`
	Window            TimeWindow  `json:"time_window" yaml:"time_window"`
	Probability       float64     `json:"probability" yaml:"probability"`
	IsolationDuration float64     `json:"isolation_duration" yaml:"isolation_duration"` // hours
}

// Validate checks the measure against the simulation horizon.
func (m MeasureSpec) Validate(horizon float64) error {
	if !m.Kind.Valid() {
		return NewConfigurationError("measure.kind", "unknown kind %q", m.Kind)
	}
	if !m.Window.Within(horizon) {
		return NewConfigurationError("measure.time_window", "%s is outside [0, %g)", m.Window, horizon)
	}
	if m.Probability < 0 || m.Probability > 1 {
		return NewConfigurationError("measure.probability", "must be between 0 and 1, got %g", m.Probability)
	}
	if m.IsolationDuration < 0 {
		return NewConfigurationError("measure.isolation_duration", "must be non-negative, got %g", m.IsolationDuration)
	}
	return nil
}

func (m MeasureSpec) String() string {
	return fmt.Sprintf("%s%s p=%g isolation=%gh", m.Kind, m.Window, m.Probability, m.IsolationDuration)
}
