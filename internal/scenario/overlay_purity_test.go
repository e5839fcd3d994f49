package scenario_test

import (
	"testing"

	"github.com/nvandessel/tracesim/internal/config"
	"github.com/nvandessel/tracesim/internal/models"
	"github.com/nvandessel/tracesim/internal/scenario"
)

func TestBuildOverlay_DefaultPoliciesLeaveBaselineUnchanged(t *testing.T) {
	base, err := models.ParamsFrom(map[string]any{
		"beta_site":                     0.6,
		"beta_household":                1.5,
		scenario.ParamPolicyTest:        "advanced",
		scenario.ParamTestedContacts:    10,
		scenario.ParamTracingActions:    []string{"isolate", "test"},
		scenario.ParamIsolationDuration: 336.0,
	})
	if err != nil {
		t.Fatalf("ParamsFrom() error = %v", err)
	}
	before := base.Hash()
	keys := base.Keys()

	policies := config.DefaultPolicies()
	if len(policies) != 4 {
		t.Fatalf("DefaultPolicies() = %d policies, want 4", len(policies))
	}
	for _, p := range policies {
		overlay, err := scenario.BuildOverlay(p, scenario.DefaultOverlayOptions())
		if err != nil {
			t.Fatalf("BuildOverlay(%s) error = %v", scenario.ID(p), err)
		}
		if _, err := overlay(base); err != nil {
			t.Fatalf("overlay(%s) error = %v", scenario.ID(p), err)
		}
		if got := base.Hash(); got != before {
			t.Errorf("baseline hash changed after %s overlay: %s != %s", scenario.ID(p), got, before)
		}
	}
	if got := base.Keys(); len(got) != len(keys) {
		t.Errorf("baseline keys = %v, want %v", got, keys)
	}
}
