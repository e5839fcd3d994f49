package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/tracesim/internal/models"
)

// idNone marks an absent optional field in scenario ids.
const idNone = "none"

// ID derives the scenario identifier from a policy, e.g.
// "isolate+test|delay=48|contacts=100000|policy=basic". Every field is an
// enum or a number, so none can contain the separators and distinct
// policies never share an id.
func ID(policy models.Policy) string {
	p := policy.Normalized()

	actions := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		actions[i] = string(a)
	}

	contacts := idNone
	if p.ContactsTested != nil {
		contacts = p.ContactsTested.String()
	}
	testPolicy := idNone
	if p.TestPolicy != models.TestPolicyNone {
		testPolicy = string(p.TestPolicy)
	}

	return strings.Join([]string{
		strings.Join(actions, "+"),
		"delay=" + strconv.FormatFloat(p.TestDelay, 'g', -1, 64),
		"contacts=" + contacts,
		"policy=" + testPolicy,
	}, "|")
}

// Builder makes scenarios with a fixed set of measure and overlay options.
type Builder struct {
	Measures MeasureOptions
	Overlay  OverlayOptions
}

// NewBuilder returns a Builder with the reference options.
func NewBuilder() *Builder {
	return &Builder{
		Measures: DefaultMeasureOptions(),
		Overlay:  DefaultOverlayOptions(),
	}
}

// Make builds the scenario for one policy. The overlay is applied to the
// baseline once so that a missing baseline key is reported here, before
// any run starts, rather than inside a worker.
func (b *Builder) Make(policy models.Policy, horizon float64, baseline models.Params) (models.Scenario, error) {
	if err := policy.Validate(); err != nil {
		return models.Scenario{}, fmt.Errorf("invalid policy %s: %w", policy, err)
	}
	policy = policy.Normalized()

	measures, err := BuildMeasures(horizon, policy, b.Measures)
	if err != nil {
		return models.Scenario{}, err
	}
	overlay, err := BuildOverlay(policy, b.Overlay)
	if err != nil {
		return models.Scenario{}, err
	}
	if _, err := overlay(baseline); err != nil {
		return models.Scenario{}, err
	}

	id := ID(policy)
	return models.NewScenario(id, policy, measures, overlay, describe(policy)), nil
}

// describe returns a human-readable summary of the policy.
func describe(p models.Policy) string {
	actions := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		actions[i] = string(a)
	}
	s := fmt.Sprintf("tracing=%s, test delay %gh", strings.Join(actions, "+"), p.TestDelay)
	if p.TestingEnabled() {
		s += fmt.Sprintf(", %s contacts tested (%s policy)", p.ContactsTested, p.TestPolicy)
	}
	return s
}
