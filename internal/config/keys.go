package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/tracesim/internal/models"
)

// field binds a dot-notation key to a config setting.
type field struct {
	get func(c *TracesimConfig) any
	set func(c *TracesimConfig, value string) error
}

var fields = map[string]field{
	"experiment.name": {
		get: func(c *TracesimConfig) any { return c.Experiment.Name },
		set: func(c *TracesimConfig, v string) error { c.Experiment.Name = v; return nil },
	},
	"experiment.start_date": {
		get: func(c *TracesimConfig) any { return c.Experiment.StartDate },
		set: func(c *TracesimConfig, v string) error { c.Experiment.StartDate = v; return nil },
	},
	"experiment.end_date": {
		get: func(c *TracesimConfig) any { return c.Experiment.EndDate },
		set: func(c *TracesimConfig, v string) error { c.Experiment.EndDate = v; return nil },
	},
	"experiment.repeats": {
		get: func(c *TracesimConfig) any { return c.Experiment.Repeats },
		set: func(c *TracesimConfig, v string) error { return setInt(&c.Experiment.Repeats, v) },
	},
	"experiment.seed": {
		get: func(c *TracesimConfig) any { return c.Experiment.Seed },
		set: func(c *TracesimConfig, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %s", v)
			}
			c.Experiment.Seed = n
			return nil
		},
	},
	"experiment.parallelism": {
		get: func(c *TracesimConfig) any { return c.Experiment.Parallelism },
		set: func(c *TracesimConfig, v string) error { return setInt(&c.Experiment.Parallelism, v) },
	},
	"experiment.fail_fast": {
		get: func(c *TracesimConfig) any { return c.Experiment.FailFast },
		set: func(c *TracesimConfig, v string) error { c.Experiment.FailFast = parseBool(v); return nil },
	},
	"experiment.expected_daily_base_expo_per100k": {
		get: func(c *TracesimConfig) any { return c.Experiment.ExpectedDailyBaseExpoPer100k },
		set: func(c *TracesimConfig, v string) error { return setFloat(&c.Experiment.ExpectedDailyBaseExpoPer100k, v) },
	},
	"experiment.full_scale": {
		get: func(c *TracesimConfig) any { return c.Experiment.FullScale },
		set: func(c *TracesimConfig, v string) error { c.Experiment.FullScale = parseBool(v); return nil },
	},
	"measures.probability": {
		get: func(c *TracesimConfig) any { return c.Measures.Probability },
		set: func(c *TracesimConfig, v string) error { return setFloat(&c.Measures.Probability, v) },
	},
	"measures.isolation_days": {
		get: func(c *TracesimConfig) any { return c.Measures.IsolationDays },
		set: func(c *TracesimConfig, v string) error { return setFloat(&c.Measures.IsolationDays, v) },
	},
	"overlay.tests_per_batch": {
		get: func(c *TracesimConfig) any { return c.Overlay.TestsPerBatch },
		set: func(c *TracesimConfig, v string) error { return setInt(&c.Overlay.TestsPerBatch, v) },
	},
	"overlay.isolated_contacts": {
		get: func(c *TracesimConfig) any { return c.Overlay.IsolatedContacts },
		set: func(c *TracesimConfig, v string) error { return setInt(&c.Overlay.IsolatedContacts, v) },
	},
	"overlay.isolation_policy": {
		get: func(c *TracesimConfig) any { return c.Overlay.IsolationPolicy },
		set: func(c *TracesimConfig, v string) error { c.Overlay.IsolationPolicy = v; return nil },
	},
	"overlay.required_keys": {
		get: func(c *TracesimConfig) any { return strings.Join(c.Overlay.RequiredKeys, ",") },
		set: func(c *TracesimConfig, v string) error { c.Overlay.RequiredKeys = splitList(v); return nil },
	},
	"calibration.multi_objective": {
		get: func(c *TracesimConfig) any { return c.Calibration.MultiObjective },
		set: func(c *TracesimConfig, v string) error { c.Calibration.MultiObjective = parseBool(v); return nil },
	},
	"calibration.short_areas": {
		get: func(c *TracesimConfig) any { return strings.Join(c.Calibration.ShortAreas, ",") },
		set: func(c *TracesimConfig, v string) error { c.Calibration.ShortAreas = splitList(v); return nil },
	},
	"calibration.max_iterations": {
		get: func(c *TracesimConfig) any { return c.Calibration.MaxIterations },
		set: func(c *TracesimConfig, v string) error { return setInt(&c.Calibration.MaxIterations, v) },
	},
	"engine.command": {
		get: func(c *TracesimConfig) any { return c.Engine.Command },
		set: func(c *TracesimConfig, v string) error { c.Engine.Command = v; return nil },
	},
	"engine.timeout": {
		get: func(c *TracesimConfig) any { return c.Engine.Timeout.String() },
		set: func(c *TracesimConfig, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", v)
			}
			c.Engine.Timeout = d
			return nil
		},
	},
	"logging.level": {
		get: func(c *TracesimConfig) any { return c.Logging.Level },
		set: func(c *TracesimConfig, v string) error { c.Logging.Level = v; return nil },
	},
	"logging.format": {
		get: func(c *TracesimConfig) any { return c.Logging.Format },
		set: func(c *TracesimConfig, v string) error { c.Logging.Format = v; return nil },
	},
}

// Keys returns every dot-notation key accepted by Get and Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get retrieves a configuration value by dot-notation key.
func (c *TracesimConfig) Get(key string) (any, bool) {
	f, ok := fields[key]
	if !ok {
		return nil, false
	}
	return f.get(c), true
}

// Set assigns a configuration value by dot-notation key and validates the
// result. On error the config is left unchanged.
func (c *TracesimConfig) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return models.NewConfigurationError(key, "unknown configuration key")
	}
	updated := *c
	if err := f.set(&updated, value); err != nil {
		return models.NewConfigurationError(key, "%v", err)
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	*c = updated
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer: %s", v)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %s", v)
	}
	*dst = f
	return nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
