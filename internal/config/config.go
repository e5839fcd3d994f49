// Package config provides unified configuration loading for tracesim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/tracesim/internal/calibration"
	"github.com/nvandessel/tracesim/internal/constants"
	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/logging"
	"github.com/nvandessel/tracesim/internal/models"
	"github.com/nvandessel/tracesim/internal/scenario"
)

// TracesimConfig contains all tracesim configuration settings.
type TracesimConfig struct {
	// Experiment controls the sweep: period, repeats, seeding and workers.
	Experiment ExperimentConfig `json:"experiment" yaml:"experiment"`

	// Measures configures the intervention measures attached to every scenario.
	Measures MeasuresConfig `json:"measures" yaml:"measures"`

	// Overlay configures the contact-tracing parameters written over the
	// calibrated baseline.
	Overlay OverlayConfig `json:"overlay" yaml:"overlay"`

	// Policies is the list of tracing policies swept by "tracesim run".
	Policies []models.Policy `json:"policies" yaml:"policies"`

	// Calibration selects which calibration history feeds the baseline.
	Calibration CalibrationConfig `json:"calibration" yaml:"calibration"`

	// Engine configures the external simulator.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Logging contains settings for operational and run event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ExperimentConfig configures one sweep.
type ExperimentConfig struct {
	// Name prefixes the experiment label "<name>-<country>-<area>".
	Name string `json:"name" yaml:"name"`

	// StartDate and EndDate bound the simulated period (YYYY-MM-DD, end exclusive).
	StartDate string `json:"start_date" yaml:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date"`

	// Repeats is the number of stochastic runs per scenario.
	Repeats int `json:"repeats" yaml:"repeats"`

	// Seed is the global seed per-run seeds are derived from.
	Seed int64 `json:"seed" yaml:"seed"`

	// Parallelism bounds concurrent runs. 0 uses all CPUs.
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	// FailFast cancels queued runs after the first failure.
	FailFast bool `json:"fail_fast" yaml:"fail_fast"`

	ExpectedDailyBaseExpoPer100k float64 `json:"expected_daily_base_expo_per100k" yaml:"expected_daily_base_expo_per100k"`
	FullScale                    bool    `json:"full_scale" yaml:"full_scale"`
}

// MeasuresConfig configures measure composition.
type MeasuresConfig struct {
	// Probability is the compliance probability of every measure, in [0, 1].
	Probability float64 `json:"probability" yaml:"probability"`

	// IsolationDays is how long traced individuals are isolated.
	IsolationDays float64 `json:"isolation_days" yaml:"isolation_days"`
}

// OverlayConfig configures the tracing parameter overlay.
type OverlayConfig struct {
	TestsPerBatch    int      `json:"tests_per_batch" yaml:"tests_per_batch"`
	IsolatedContacts int      `json:"isolated_contacts" yaml:"isolated_contacts"`
	IsolationPolicy  string   `json:"isolation_policy" yaml:"isolation_policy"`
	RequiredKeys     []string `json:"required_keys" yaml:"required_keys"`
}

// CalibrationConfig selects calibration history.
type CalibrationConfig struct {
	// MultiObjective uses the multi-beta calibration history.
	MultiObjective bool `json:"multi_objective" yaml:"multi_objective"`

	// ShortAreas only use iterations below MaxIterations.
	ShortAreas    []string `json:"short_areas" yaml:"short_areas"`
	MaxIterations int      `json:"max_iterations" yaml:"max_iterations"`
}

// EngineConfig configures the external simulator process.
type EngineConfig struct {
	// Command is the simulator executable. Empty requires --dry-run or --engine-cmd.
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Timeout bounds a single run. 0 means no limit.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LoggingConfig configures tracesim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run event logging to .tracesim/runs.jsonl.
	// "trace" additionally logs every dispatched run.
	Level string `json:"level" yaml:"level"`

	// Format selects the stderr log format: "text" (default) or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultPolicies returns the reference tracing policies.
func DefaultPolicies() []models.Policy {
	return []models.Policy{
		{Actions: []models.Action{models.ActionIsolate, models.ActionTest}, TestDelay: 48, ContactsTested: models.Contacts(100000), TestPolicy: models.TestPolicyBasic},
		{Actions: []models.Action{models.ActionIsolate, models.ActionTest}, TestDelay: 48, ContactsTested: models.Contacts(30), TestPolicy: models.TestPolicyAdvanced},
		{Actions: []models.Action{models.ActionIsolate}, TestDelay: 48},
		{Actions: []models.Action{models.ActionIsolate}, TestDelay: 3},
	}
}

// Default returns a TracesimConfig with the reference sweep settings.
func Default() *TracesimConfig {
	overlay := scenario.DefaultOverlayOptions()
	return &TracesimConfig{
		Experiment: ExperimentConfig{
			Name:                         constants.DefaultExperimentName,
			StartDate:                    constants.DefaultStartDate,
			EndDate:                      constants.DefaultEndDate,
			Repeats:                      constants.DefaultRandomRepeats,
			Seed:                         constants.DefaultSeed,
			Parallelism:                  0,
			FailFast:                     false,
			ExpectedDailyBaseExpoPer100k: constants.DefaultExpectedDailyBaseExpoPer100k,
			FullScale:                    true,
		},
		Measures: MeasuresConfig{
			Probability:   constants.DefaultMeasureProbability,
			IsolationDays: constants.DefaultIsolationDays,
		},
		Overlay: OverlayConfig{
			TestsPerBatch:    overlay.TestsPerBatch,
			IsolatedContacts: overlay.IsolatedContacts,
			IsolationPolicy:  overlay.IsolationPolicy,
			RequiredKeys:     overlay.RequiredKeys,
		},
		Policies: DefaultPolicies(),
		Calibration: CalibrationConfig{
			MultiObjective: false,
			ShortAreas:     append([]string(nil), constants.ShortCalibrationAreas...),
			MaxIterations:  constants.ShortCalibrationMaxIterations,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

// Load loads configuration for a project root.
// Order: defaults -> <root>/.tracesim/config.yaml -> environment variables
func Load(root string) (*TracesimConfig, error) {
	config := Default()

	configPath := filepath.Join(root, constants.DirName, constants.ConfigFile)
	if _, statErr := os.Stat(configPath); statErr == nil {
		fileConfig, loadErr := LoadFromFile(configPath)
		if loadErr != nil {
			return nil, fmt.Errorf("loading config file: %w", loadErr)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadPath loads configuration from an explicit file and applies
// environment overrides.
// Order: defaults -> path -> environment variables
func LoadPath(path string) (*TracesimConfig, error) {
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*TracesimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Engine.Command = expandEnvVars(config.Engine.Command)

	return config, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *TracesimConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *TracesimConfig) Validate() error {
	if c.Experiment.Name == "" {
		return models.NewConfigurationError("experiment.name", "is required")
	}
	if _, err := c.Horizon(); err != nil {
		return err
	}
	if c.Experiment.Repeats < 1 {
		return models.NewConfigurationError("experiment.repeats", "must be at least 1, got %d", c.Experiment.Repeats)
	}
	if c.Experiment.Parallelism < 0 {
		return models.NewConfigurationError("experiment.parallelism", "must be non-negative, got %d", c.Experiment.Parallelism)
	}
	if c.Experiment.ExpectedDailyBaseExpoPer100k < 0 {
		return models.NewConfigurationError("experiment.expected_daily_base_expo_per100k", "must be non-negative")
	}

	if c.Measures.Probability < 0 || c.Measures.Probability > 1 {
		return models.NewConfigurationError("measures.probability", "must be between 0 and 1, got %g", c.Measures.Probability)
	}
	if c.Measures.IsolationDays < 0 {
		return models.NewConfigurationError("measures.isolation_days", "must be non-negative, got %g", c.Measures.IsolationDays)
	}

	if c.Overlay.TestsPerBatch < 0 {
		return models.NewConfigurationError("overlay.tests_per_batch", "must be non-negative, got %d", c.Overlay.TestsPerBatch)
	}
	if c.Overlay.IsolatedContacts < 0 {
		return models.NewConfigurationError("overlay.isolated_contacts", "must be non-negative, got %d", c.Overlay.IsolatedContacts)
	}
	if p := models.TestPolicy(c.Overlay.IsolationPolicy); p == "" || !p.Valid() {
		return models.NewConfigurationError("overlay.isolation_policy", "invalid policy %q (valid: basic, advanced)", c.Overlay.IsolationPolicy)
	}

	if len(c.Policies) == 0 {
		return models.NewConfigurationError("policies", "at least one policy is required")
	}
	for i, p := range c.Policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("policies[%d]: %w", i, err)
		}
	}

	if c.Calibration.MaxIterations < 0 {
		return models.NewConfigurationError("calibration.max_iterations", "must be non-negative, got %d", c.Calibration.MaxIterations)
	}

	if c.Engine.Timeout < 0 {
		return models.NewConfigurationError("engine.timeout", "must be non-negative, got %v", c.Engine.Timeout)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return models.NewConfigurationError("logging.level", "invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return models.NewConfigurationError("logging.format", "invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	return nil
}

// Horizon converts the experiment dates into a simulation window in hours.
func (c *TracesimConfig) Horizon() (models.TimeWindow, error) {
	start, err := time.Parse(constants.DateLayout, c.Experiment.StartDate)
	if err != nil {
		return models.TimeWindow{}, models.NewConfigurationError("experiment.start_date", "invalid date %q", c.Experiment.StartDate)
	}
	end, err := time.Parse(constants.DateLayout, c.Experiment.EndDate)
	if err != nil {
		return models.TimeWindow{}, models.NewConfigurationError("experiment.end_date", "invalid date %q", c.Experiment.EndDate)
	}
	days := end.Sub(start).Hours() / constants.HoursPerDay
	if days <= 0 {
		return models.TimeWindow{}, models.NewConfigurationError("experiment.end_date", "must be after start_date (%s..%s)", c.Experiment.StartDate, c.Experiment.EndDate)
	}
	return models.NewTimeWindow(0, days*constants.HoursPerDay)
}

// ExperimentConfig returns the orchestrator configuration for a region.
func (c *TracesimConfig) ExperimentConfig(region models.Region) (experiment.Config, error) {
	horizon, err := c.Horizon()
	if err != nil {
		return experiment.Config{}, err
	}
	return experiment.Config{
		Name:                         c.ExperimentName(region),
		Region:                       region,
		Horizon:                      horizon,
		Repeats:                      c.Experiment.Repeats,
		Parallelism:                  c.Experiment.Parallelism,
		Seed:                         c.Experiment.Seed,
		FailFast:                     c.Experiment.FailFast,
		ExpectedDailyBaseExpoPer100k: c.Experiment.ExpectedDailyBaseExpoPer100k,
		FullScale:                    c.Experiment.FullScale,
	}, nil
}

// ExperimentName returns "<name>-<country>-<area>".
func (c *TracesimConfig) ExperimentName(region models.Region) string {
	return c.Experiment.Name + "-" + region.String()
}

// MeasureOptions returns the measure composition options.
func (c *TracesimConfig) MeasureOptions() scenario.MeasureOptions {
	return scenario.MeasureOptions{
		Probability:       c.Measures.Probability,
		IsolationDuration: c.Measures.IsolationDays * constants.HoursPerDay,
	}
}

// OverlayOptions returns the tracing overlay options.
func (c *TracesimConfig) OverlayOptions() scenario.OverlayOptions {
	return scenario.OverlayOptions{
		TestsPerBatch:     c.Overlay.TestsPerBatch,
		IsolatedContacts:  c.Overlay.IsolatedContacts,
		IsolationPolicy:   c.Overlay.IsolationPolicy,
		IsolationDuration: c.Measures.IsolationDays * constants.HoursPerDay,
		RequiredKeys:      append([]string(nil), c.Overlay.RequiredKeys...),
	}
}

// Builder returns a scenario builder wired to this configuration.
func (c *TracesimConfig) Builder() *scenario.Builder {
	return &scenario.Builder{
		Measures: c.MeasureOptions(),
		Overlay:  c.OverlayOptions(),
	}
}

// Cutoff returns the calibration iteration cutoff rule.
func (c *TracesimConfig) Cutoff() calibration.Cutoff {
	return calibration.Cutoff{
		ShortAreas:    append([]string(nil), c.Calibration.ShortAreas...),
		MaxIterations: c.Calibration.MaxIterations,
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *TracesimConfig) error {
	if v := os.Getenv("TRACESIM_EXPERIMENT_NAME"); v != "" {
		config.Experiment.Name = v
	}
	if v := os.Getenv("TRACESIM_START_DATE"); v != "" {
		config.Experiment.StartDate = v
	}
	if v := os.Getenv("TRACESIM_END_DATE"); v != "" {
		config.Experiment.EndDate = v
	}
	if v := os.Getenv("TRACESIM_REPEATS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.NewConfigurationError("TRACESIM_REPEATS", "invalid integer %q", v)
		}
		config.Experiment.Repeats = n
	}
	if v := os.Getenv("TRACESIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return models.NewConfigurationError("TRACESIM_SEED", "invalid integer %q", v)
		}
		config.Experiment.Seed = n
	}
	if v := os.Getenv("TRACESIM_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.NewConfigurationError("TRACESIM_PARALLELISM", "invalid integer %q", v)
		}
		config.Experiment.Parallelism = n
	}
	if v := os.Getenv("TRACESIM_FAIL_FAST"); v != "" {
		config.Experiment.FailFast = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACESIM_MULTI_OBJECTIVE"); v != "" {
		config.Calibration.MultiObjective = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACESIM_ENGINE_COMMAND"); v != "" {
		config.Engine.Command = v
	}
	if v := os.Getenv("TRACESIM_ENGINE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return models.NewConfigurationError("TRACESIM_ENGINE_TIMEOUT", "invalid duration %q", v)
		}
		config.Engine.Timeout = d
	}
	if v := os.Getenv("TRACESIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("TRACESIM_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
