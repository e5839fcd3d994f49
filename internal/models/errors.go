package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Match them with errors.Is.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrState            = errors.New("state error")
	ErrRunFailed        = errors.New("run failed")
	ErrStoreUnavailable = errors.New("calibrated parameter store unavailable")
)

// ConfigurationError reports an invalid horizon, a missing required
// parameter or a malformed policy. It is always fatal and surfaces before
// any run starts.
type ConfigurationError struct {
	Key    string // offending field or parameter name, may be empty
	Reason string
}

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(key, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) hold.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// StateError reports orchestrator misuse, such as adding a scenario after
// the run has started.
type StateError struct {
	Op    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s not allowed in state %s", e.Op, e.State)
}

// Is makes errors.Is(err, ErrState) hold.
func (e *StateError) Is(target error) bool { return target == ErrState }

// RunFailure records a single repeat that failed or was cancelled.
type RunFailure struct {
	Key       RunKey `json:"key"`
	Seed      int64  `json:"seed"`
	Message   string `json:"message"`
	Cancelled bool   `json:"cancelled,omitempty"`

	cause error
}

// NewRunFailure wraps cause as the failure of the run identified by key.
func NewRunFailure(key RunKey, seed int64, cause error) *RunFailure {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &RunFailure{Key: key, Seed: seed, Message: msg, cause: cause}
}

func (e *RunFailure) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("run %s cancelled", e.Key)
	}
	return fmt.Sprintf("run %s failed: %s", e.Key, e.Message)
}

func (e *RunFailure) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrRunFailed) hold.
func (e *RunFailure) Is(target error) bool { return target == ErrRunFailed }

// StoreUnavailable reports that calibrated parameters could not be
// retrieved. No scenario can be built without them, so it is fatal to the
// whole batch.
type StoreUnavailable struct {
	Region Region
	Cause  error
}

func (e *StoreUnavailable) Error() string {
	return fmt.Sprintf("calibrated parameters for %s unavailable: %v", e.Region, e.Cause)
}

func (e *StoreUnavailable) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrStoreUnavailable) hold.
func (e *StoreUnavailable) Is(target error) bool { return target == ErrStoreUnavailable }
