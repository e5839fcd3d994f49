package models

// Scenario is one fully specified combination of policy, measures and
// parameter overlay. It is immutable after construction.
type Scenario struct {
	id       string
	policy   Policy
	measures []MeasureSpec
	overlay  Overlay
	metadata string
}

// NewScenario assembles a Scenario, copying the policy and measures.
func NewScenario(id string, policy Policy, measures []MeasureSpec, overlay Overlay, metadata string) Scenario {
	ms := make([]MeasureSpec, len(measures))
	copy(ms, measures)
	return Scenario{
		id:       id,
		policy:   policy.Normalized(),
		measures: ms,
		overlay:  overlay,
		metadata: metadata,
	}
}

// ID returns the scenario identifier.
func (s Scenario) ID() string { return s.id }

// Metadata returns the human-readable description.
func (s Scenario) Metadata() string { return s.metadata }

// Policy returns a copy of the policy the scenario was built from.
func (s Scenario) Policy() Policy { return s.policy.Normalized() }

// Measures returns a copy of the ordered measure list.
func (s Scenario) Measures() []MeasureSpec {
	out := make([]MeasureSpec, len(s.measures))
	copy(out, s.measures)
	return out
}

// Apply runs the overlay against baseline. A scenario without an overlay
// returns the baseline unchanged.
func (s Scenario) Apply(baseline Params) (Params, error) {
	if s.overlay == nil {
		return baseline, nil
	}
	return s.overlay(baseline)
}
