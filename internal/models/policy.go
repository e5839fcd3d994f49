package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action is a smart-tracing action taken on traced contacts.
type Action string

const (
	ActionIsolate Action = "isolate"
	ActionTest    Action = "test"
)

// actionOrder is the canonical action order used for ids and overlays.
var actionOrder = map[Action]int{ActionIsolate: 0, ActionTest: 1}

// TestPolicy selects how traced contacts are prioritized for testing.
// The empty value means testing is not configured.
type TestPolicy string

const (
	TestPolicyNone     TestPolicy = ""
	TestPolicyBasic    TestPolicy = "basic"
	TestPolicyAdvanced TestPolicy = "advanced"
)

// Valid returns true for the known policies, including the empty value.
func (p TestPolicy) Valid() bool {
	switch p {
	case TestPolicyNone, TestPolicyBasic, TestPolicyAdvanced:
		return true
	}
	return false
}

// ContactCap bounds the number of traced contacts that get tested.
type ContactCap struct {
	N         int
	Unlimited bool
}

// Contacts returns a cap of n contacts.
func Contacts(n int) *ContactCap {
	return &ContactCap{N: n}
}

// UnlimitedContacts returns a cap that never binds.
func UnlimitedContacts() *ContactCap {
	return &ContactCap{Unlimited: true}
}

// String returns the decimal cap or "unlimited".
func (c ContactCap) String() string {
	if c.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(c.N)
}

// Value returns the cap as a parameter value: float64 or "unlimited".
func (c ContactCap) Value() any {
	if c.Unlimited {
		return "unlimited"
	}
	return float64(c.N)
}

func parseContactCap(s string) (ContactCap, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unlimited") {
		return ContactCap{Unlimited: true}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return ContactCap{}, NewConfigurationError("contacts_tested", "expected integer or \"unlimited\", got %q", s)
	}
	if n < 0 {
		return ContactCap{}, NewConfigurationError("contacts_tested", "must be non-negative, got %d", n)
	}
	return ContactCap{N: n}, nil
}

// UnmarshalYAML accepts an integer or the string "unlimited".
func (c *ContactCap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return NewConfigurationError("contacts_tested", "expected scalar at line %d", node.Line)
	}
	parsed, err := parseContactCap(node.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalYAML writes the cap back in the form UnmarshalYAML accepts.
func (c ContactCap) MarshalYAML() (any, error) {
	if c.Unlimited {
		return "unlimited", nil
	}
	return c.N, nil
}

// MarshalJSON encodes an integer or "unlimited".
func (c ContactCap) MarshalJSON() ([]byte, error) {
	if c.Unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.Itoa(c.N)), nil
}

// UnmarshalJSON accepts an integer or "unlimited".
func (c *ContactCap) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := parseContactCap(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Policy is one point of the scenario space: which tracing actions are
// taken, how long test results take, and how testing is prioritized.
// ContactsTested and TestPolicy are set if and only if testing is enabled.
type Policy struct {
	Actions        []Action    `json:"actions" yaml:"actions"`
	TestDelay      float64     `json:"test_delay" yaml:"test_delay"` // hours
	ContactsTested *ContactCap `json:"contacts_tested,omitempty" yaml:"contacts_tested,omitempty"`
	TestPolicy     TestPolicy  `json:"test_policy,omitempty" yaml:"test_policy,omitempty"`
}

// TestingEnabled reports whether the test action is present.
func (p Policy) TestingEnabled() bool {
	for _, a := range p.Actions {
		if a == ActionTest {
			return true
		}
	}
	return false
}

// Normalized returns a copy with actions in canonical order and an owned
// ContactsTested value.
func (p Policy) Normalized() Policy {
	out := p
	out.Actions = make([]Action, len(p.Actions))
	copy(out.Actions, p.Actions)
	// insertion sort; at most two actions
	for i := 1; i < len(out.Actions); i++ {
		for j := i; j > 0 && actionOrder[out.Actions[j]] < actionOrder[out.Actions[j-1]]; j-- {
			out.Actions[j], out.Actions[j-1] = out.Actions[j-1], out.Actions[j]
		}
	}
	if out.TestDelay == 0 {
		out.TestDelay = 0 // drop negative zero
	}
	if p.ContactsTested != nil {
		c := *p.ContactsTested
		if c.Unlimited {
			c.N = 0
		}
		out.ContactsTested = &c
	}
	return out
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if len(p.Actions) == 0 {
		return NewConfigurationError("actions", "at least one action is required")
	}
	seen := make(map[Action]bool, len(p.Actions))
	for _, a := range p.Actions {
		if _, ok := actionOrder[a]; !ok {
			return NewConfigurationError("actions", "unknown action %q (valid: isolate, test)", a)
		}
		if seen[a] {
			return NewConfigurationError("actions", "duplicate action %q", a)
		}
		seen[a] = true
	}
	if math.IsNaN(p.TestDelay) || math.IsInf(p.TestDelay, 0) {
		return NewConfigurationError("test_delay", "must be finite, got %g", p.TestDelay)
	}
	if p.TestDelay < 0 {
		return NewConfigurationError("test_delay", "must be non-negative, got %g", p.TestDelay)
	}
	if !p.TestPolicy.Valid() {
		return NewConfigurationError("test_policy", "unknown policy %q (valid: basic, advanced)", p.TestPolicy)
	}
	if (p.ContactsTested == nil) != (p.TestPolicy == TestPolicyNone) {
		return NewConfigurationError("contacts_tested", "contacts_tested and test_policy must be both set or both absent")
	}
	if p.ContactsTested != nil && !p.ContactsTested.Unlimited && p.ContactsTested.N < 0 {
		return NewConfigurationError("contacts_tested", "must be non-negative, got %d", p.ContactsTested.N)
	}
	if p.TestingEnabled() != (p.TestPolicy != TestPolicyNone) {
		if p.TestingEnabled() {
			return NewConfigurationError("test_policy", "test action requires contacts_tested and test_policy")
		}
		return NewConfigurationError("test_policy", "contacts_tested and test_policy require the test action")
	}
	return nil
}

func (p Policy) String() string {
	parts := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		parts[i] = string(a)
	}
	return fmt.Sprintf("Policy{actions:%s delay:%g contacts:%v policy:%q}",
		strings.Join(parts, "+"), p.TestDelay, p.ContactsTested, p.TestPolicy)
}
