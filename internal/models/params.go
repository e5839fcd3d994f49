package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

// Params is an immutable mapping from parameter name to value. Values are
// float64, string, bool or []string. Every constructor copies its input and
// no method mutates the receiver, so a calibrated baseline can be shared
// across scenarios and workers.
type Params struct {
	values map[string]any
}

// Overlay derives effective parameters from a baseline without mutating it.
type Overlay func(baseline Params) (Params, error)

// NewParams copies a numeric mapping into Params. Values must be finite.
func NewParams(values map[string]float64) Params {
	m := make(map[string]any, len(values))
	for k, v := range values {
		m[k] = v
	}
	return Params{values: m}
}

// ParamsFrom copies a loosely typed mapping into Params, rejecting values
// of unsupported types. Integer types are widened to float64.
func ParamsFrom(values map[string]any) (Params, error) {
	m := make(map[string]any, len(values))
	for k, v := range values {
		nv, err := normalizeValue(k, v)
		if err != nil {
			return Params{}, err
		}
		m[k] = nv
	}
	return Params{values: m}, nil
}

func normalizeValue(key string, v any) (any, error) {
	switch tv := v.(type) {
	case float64:
		return finite(key, tv)
	case float32:
		return finite(key, float64(tv))
	case string, bool:
		return tv, nil
	case int:
		return float64(tv), nil
	case int64:
		return float64(tv), nil
	case []string:
		out := make([]string, len(tv))
		copy(out, tv)
		return out, nil
	case []any:
		out := make([]string, 0, len(tv))
		for _, item := range tv {
			s, ok := item.(string)
			if !ok {
				return nil, NewConfigurationError(key, "list values must be strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, NewConfigurationError(key, "unsupported parameter type %T", v)
	}
}

// finite rejects NaN and infinities, which JSON cannot carry.
func finite(key string, v float64) (any, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, NewConfigurationError(key, "must be finite, got %g", v)
	}
	return v, nil
}

// Len returns the number of parameters.
func (p Params) Len() int {
	return len(p.values)
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Get returns the value for key. Slice values are copied.
func (p Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	if !ok {
		return nil, false
	}
	if s, isSlice := v.([]string); isSlice {
		out := make([]string, len(s))
		copy(out, s)
		return out, true
	}
	return v, true
}

// Float returns a numeric parameter or a ConfigurationError naming the key
// when it is missing or not numeric.
func (p Params) Float(key string) (float64, error) {
	v, ok := p.values[key]
	if !ok {
		return 0, NewConfigurationError(key, "required parameter is missing")
	}
	f, ok := v.(float64)
	if !ok {
		return 0, NewConfigurationError(key, "expected number, got %T", v)
	}
	return f, nil
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a deep copy of the underlying mapping.
func (p Params) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k := range p.values {
		out[k], _ = p.Get(k)
	}
	return out
}

// With returns a copy of p with updates applied on top.
func (p Params) With(updates map[string]any) (Params, error) {
	out := p.Map()
	for k, v := range updates {
		nv, err := normalizeValue(k, v)
		if err != nil {
			return Params{}, err
		}
		out[k] = nv
	}
	return Params{values: out}, nil
}

// Without returns a copy of p with the given keys removed.
func (p Params) Without(keys ...string) Params {
	out := p.Map()
	for _, k := range keys {
		delete(out, k)
	}
	return Params{values: out}
}

// MarshalJSON encodes the parameters as a JSON object with sorted keys.
func (p Params) MarshalJSON() ([]byte, error) {
	if p.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.values)
}

// UnmarshalJSON decodes a JSON object into Params.
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParamsFrom(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalYAML decodes a YAML mapping into Params.
func (p *Params) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParamsFrom(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML encodes the parameters as a YAML mapping.
func (p Params) MarshalYAML() (any, error) {
	return p.Map(), nil
}

// Hash returns a stable digest of the parameters.
func (p Params) Hash() string {
	data, err := p.MarshalJSON()
	if err != nil {
		// values are restricted to JSON-encodable types
		panic(fmt.Sprintf("params: marshal: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
