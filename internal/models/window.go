package models

import "fmt"

// TimeWindow is the half-open interval [Start, End) in hours.
type TimeWindow struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// NewTimeWindow returns the window [start, end) or a ConfigurationError
// when start is negative or after end.
func NewTimeWindow(start, end float64) (TimeWindow, error) {
	if start < 0 {
		return TimeWindow{}, NewConfigurationError("time_window", "start %g is negative", start)
	}
	if start > end {
		return TimeWindow{}, NewConfigurationError("time_window", "start %g is after end %g", start, end)
	}
	return TimeWindow{Start: start, End: end}, nil
}

// Within reports whether the window lies inside [0, horizon).
func (w TimeWindow) Within(horizon float64) bool {
	return w.Start >= 0 && w.Start <= w.End && w.End <= horizon
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%g, %g)", w.Start, w.End)
}
