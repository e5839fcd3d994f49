// Package constants provides named constants used throughout the tracesim codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Time unit constants. The simulator measures time in hours.
const (
	// HoursPerDay converts day counts into simulator time.
	HoursPerDay = 24.0

	// DateLayout is the layout of experiment start and end dates.
	DateLayout = "2006-01-02"
)

// Experiment defaults, matching the reference contact-tracing sweep.
const (
	// DefaultExperimentName prefixes the experiment label "<name>-<country>-<area>".
	DefaultExperimentName = "tracing"

	// DefaultStartDate is the first simulated day.
	DefaultStartDate = "2021-01-01"

	// DefaultEndDate is the day after the last simulated day.
	DefaultEndDate = "2021-05-01"

	// DefaultRandomRepeats is the number of stochastic repeats per scenario.
	DefaultRandomRepeats = 48

	// DefaultSeed is the global seed that per-run seeds are derived from.
	DefaultSeed = 0

	// DefaultExpectedDailyBaseExpoPer100k is the expected number of daily
	// external exposures per 100k inhabitants.
	DefaultExpectedDailyBaseExpoPer100k = 5.0 / 7.0
)

// Measure and overlay defaults.
const (
	// DefaultMeasureProbability is the compliance probability of every measure.
	DefaultMeasureProbability = 1.0

	// DefaultIsolationDays is how long traced individuals stay isolated.
	DefaultIsolationDays = 14.0

	// DefaultTestsPerBatch is the per-batch test capacity.
	DefaultTestsPerBatch = 100000

	// DefaultIsolatedContacts caps the contacts isolated per traced case.
	DefaultIsolatedContacts = 100000

	// DefaultIsolationPolicy is the contact prioritization used for isolation.
	DefaultIsolationPolicy = "basic"
)

// Calibration defaults.
const (
	// ShortCalibrationMaxIterations is the optimizer iteration cutoff for
	// areas whose later calibration iterations are not trusted.
	ShortCalibrationMaxIterations = 40
)

// ShortCalibrationAreas lists the areas that use ShortCalibrationMaxIterations.
var ShortCalibrationAreas = []string{"BE", "JU", "RH"}

// Storage layout.
const (
	// DirName is the per-project working directory.
	DirName = ".tracesim"

	// DatabaseFile holds calibration history and run results.
	DatabaseFile = "tracesim.db"

	// ConfigFile is the YAML configuration file.
	ConfigFile = "config.yaml"

	// EventLogFile receives one JSONL event per finished run.
	EventLogFile = "runs.jsonl"
)
