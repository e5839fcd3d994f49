package scenario

import (
	"github.com/nvandessel/tracesim/internal/constants"
	"github.com/nvandessel/tracesim/internal/models"
)

// Parameter names written by the overlay.
const (
	ParamTracingActions    = "smart_tracing_actions"
	ParamTestReportingLag  = "test_reporting_lag"
	ParamTestsPerBatch     = "tests_per_batch"
	ParamPolicyIsolate     = "smart_tracing_policy_isolate"
	ParamIsolatedContacts  = "smart_tracing_isolated_contacts"
	ParamIsolationDuration = "smart_tracing_isolation_duration"
	ParamPolicyTest        = "smart_tracing_policy_test"
	ParamTestedContacts    = "smart_tracing_tested_contacts"
)

// OverlayOptions holds the policy-independent values set by every overlay.
type OverlayOptions struct {
	TestsPerBatch     int
	IsolatedContacts  int
	IsolationPolicy   string
	IsolationDuration float64 // hours

	// RequiredKeys must be present in the baseline; a missing key fails the
	// overlay instead of letting the engine fall back to a default.
	RequiredKeys []string
}

// DefaultOverlayOptions returns the values of the reference tracing sweep.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		TestsPerBatch:     constants.DefaultTestsPerBatch,
		IsolatedContacts:  constants.DefaultIsolatedContacts,
		IsolationPolicy:   constants.DefaultIsolationPolicy,
		IsolationDuration: constants.DefaultIsolationDays * constants.HoursPerDay,
		RequiredKeys:      []string{"beta_site", "beta_household"},
	}
}

// BuildOverlay returns a pure function that writes the policy's tracing
// and testing fields onto a copy of the baseline. When testing is disabled
// the testing fields are absent from the result, even if the baseline
// carried them.
func BuildOverlay(policy models.Policy, opts OverlayOptions) (models.Overlay, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	policy = policy.Normalized()

	actions := make([]string, len(policy.Actions))
	for i, a := range policy.Actions {
		actions[i] = string(a)
	}
	required := make([]string, len(opts.RequiredKeys))
	copy(required, opts.RequiredKeys)

	// The isolation duration is a scalar number of hours.
	updates := map[string]any{
		ParamTracingActions:    actions,
		ParamTestReportingLag:  policy.TestDelay,
		ParamTestsPerBatch:     float64(opts.TestsPerBatch),
		ParamPolicyIsolate:     opts.IsolationPolicy,
		ParamIsolatedContacts:  float64(opts.IsolatedContacts),
		ParamIsolationDuration: opts.IsolationDuration,
	}
	testingEnabled := policy.TestingEnabled()
	if testingEnabled {
		updates[ParamPolicyTest] = string(policy.TestPolicy)
		updates[ParamTestedContacts] = policy.ContactsTested.Value()
	}

	return func(baseline models.Params) (models.Params, error) {
		for _, key := range required {
			if !baseline.Has(key) {
				return models.Params{}, models.NewConfigurationError(key, "required baseline parameter is missing")
			}
		}
		effective := baseline
		if !testingEnabled {
			effective = baseline.Without(ParamPolicyTest, ParamTestedContacts)
		}
		// With copies the updates map's values, so repeated calls never share state.
		return effective.With(updates)
	}, nil
}
