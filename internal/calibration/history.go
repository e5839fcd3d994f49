package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/tracesim/internal/models"
)

// Iteration is one entry of a calibration history file.
type Iteration struct {
	Iteration int           `json:"iteration" yaml:"iteration"`
	Loss      float64       `json:"loss" yaml:"loss"`
	Params    models.Params `json:"params" yaml:"params"`
}

// ReadHistoryFile reads a calibration history from a YAML or JSON file.
// The format is chosen by extension; unknown extensions are parsed as YAML,
// which also accepts JSON.
func ReadHistoryFile(path string) ([]Iteration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration history: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseHistoryJSON(data)
	}
	return ParseHistoryYAML(data)
}

// ParseHistoryJSON parses a JSON array of iterations.
func ParseHistoryJSON(data []byte) ([]Iteration, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var items []Iteration
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("parse calibration history: %w", err)
	}
	return items, validateHistory(items)
}

// ParseHistoryYAML parses a YAML sequence of iterations.
func ParseHistoryYAML(data []byte) ([]Iteration, error) {
	var items []Iteration
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse calibration history: %w", err)
	}
	return items, validateHistory(items)
}

func validateHistory(items []Iteration) error {
	if len(items) == 0 {
		return models.NewConfigurationError("calibration", "history is empty")
	}
	seen := make(map[int]bool, len(items))
	for i, it := range items {
		if it.Iteration < 0 {
			return models.NewConfigurationError(fmt.Sprintf("calibration[%d].iteration", i), "must be non-negative, got %d", it.Iteration)
		}
		if seen[it.Iteration] {
			return models.NewConfigurationError(fmt.Sprintf("calibration[%d].iteration", i), "duplicate iteration %d", it.Iteration)
		}
		seen[it.Iteration] = true
		if it.Params.Len() == 0 {
			return models.NewConfigurationError(fmt.Sprintf("calibration[%d].params", i), "is empty")
		}
	}
	return nil
}
