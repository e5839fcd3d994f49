package models

import (
	"errors"
	"testing"
)

func TestNewTimeWindow(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		wantErr    bool
	}{
		{"full horizon", 0, 2880, false},
		{"empty", 5, 5, false},
		{"negative start", -1, 10, true},
		{"reversed", 10, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTimeWindow(tt.start, tt.end)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTimeWindow() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestTimeWindow(t *testing.T) {
	w := TimeWindow{Start: 0, End: 24}

	if !w.Within(24) || w.Within(23) {
		t.Error("Within() mismatch")
	}
	if w.String() != "[0, 24)" {
		t.Errorf("String() = %s", w.String())
	}
}

func TestMeasureSpecValidate(t *testing.T) {
	ok := MeasureSpec{Kind: MeasureSmartTracingIsolation, Window: TimeWindow{End: 100}, Probability: 1, IsolationDuration: 336}
	if err := ok.Validate(100); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	bad := []MeasureSpec{
		{Kind: "unknown", Window: TimeWindow{End: 10}},
		{Kind: MeasureSmartTracingHousehold, Window: TimeWindow{End: 200}},
		{Kind: MeasureSmartTracingHousehold, Window: TimeWindow{End: 10}, Probability: 1.1},
		{Kind: MeasureSmartTracingHousehold, Window: TimeWindow{End: 10}, IsolationDuration: -1},
	}
	for _, m := range bad {
		if err := m.Validate(100); !errors.Is(err, ErrConfiguration) {
			t.Errorf("Validate(%s) = %v, want configuration error", m, err)
		}
	}

	if !MeasureSymptomaticAfterTracingHousehold.Household() || MeasureSymptomaticAfterTracing.Household() {
		t.Error("Household() mismatch")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	key := RunKey{ScenarioID: "s", Repeat: 2}
	cause := errors.New("exit status 1")

	failure := NewRunFailure(key, 9, cause)
	if !errors.Is(failure, ErrRunFailed) || !errors.Is(failure, cause) {
		t.Errorf("RunFailure does not match sentinel or cause: %v", failure)
	}
	if failure.Error() != "run s#2 failed: exit status 1" {
		t.Errorf("Error() = %s", failure.Error())
	}

	state := &StateError{Op: "Add", State: "running"}
	if !errors.Is(state, ErrState) {
		t.Error("StateError does not match ErrState")
	}

	unavailable := &StoreUnavailable{Region: Region{Country: "CH", Area: "BE"}, Cause: cause}
	if !errors.Is(unavailable, ErrStoreUnavailable) || !errors.Is(unavailable, cause) {
		t.Error("StoreUnavailable does not match sentinel or cause")
	}
}
