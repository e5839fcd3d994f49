package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/tracesim/internal/models"
)

func TestParseHistoryYAML(t *testing.T) {
	data := []byte(`
- iteration: 0
  loss: 12.5
  params:
    beta_site: 0.8
    beta_household: 2
- iteration: 1
  loss: 4.0
  params:
    beta_site: 0.6
    beta_household: 1.5
`)
	items, err := ParseHistoryYAML(data)
	if err != nil {
		t.Fatalf("ParseHistoryYAML() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	v, err := items[0].Params.Float("beta_household")
	if err != nil {
		t.Fatalf("Float() error = %v", err)
	}
	if v != 2 {
		t.Errorf("beta_household = %v, want 2", v)
	}
	if items[1].Loss != 4.0 {
		t.Errorf("loss = %v, want 4", items[1].Loss)
	}
}

func TestParseHistoryJSON(t *testing.T) {
	data := []byte(`[{"iteration": 3, "loss": 1.25, "params": {"beta_site": 0.4}}]`)
	items, err := ParseHistoryJSON(data)
	if err != nil {
		t.Fatalf("ParseHistoryJSON() error = %v", err)
	}
	if len(items) != 1 || items[0].Iteration != 3 {
		t.Errorf("items = %+v", items)
	}
}

func TestParseHistory_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", `[]`},
		{"negative iteration", `[{"iteration": -1, "loss": 1, "params": {"a": 1}}]`},
		{"duplicate iteration", `[{"iteration": 1, "loss": 1, "params": {"a": 1}}, {"iteration": 1, "loss": 2, "params": {"a": 2}}]`},
		{"missing params", `[{"iteration": 1, "loss": 1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHistoryJSON([]byte(tt.data))
			if !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}

	t.Run("non-finite yaml param", func(t *testing.T) {
		_, err := ParseHistoryYAML([]byte("- iteration: 0\n  loss: 1\n  params: {beta_site: .inf}\n"))
		if !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("expected configuration error, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := ParseHistoryJSON([]byte(`{`)); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestReadHistoryFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "history.json")
	if err := os.WriteFile(jsonPath, []byte(`[{"iteration": 0, "loss": 1, "params": {"beta_site": 1}}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	yamlPath := filepath.Join(dir, "history.yaml")
	if err := os.WriteFile(yamlPath, []byte("- iteration: 0\n  loss: 1\n  params: {beta_site: 1}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{jsonPath, yamlPath} {
		items, err := ReadHistoryFile(path)
		if err != nil {
			t.Errorf("ReadHistoryFile(%s) error = %v", filepath.Base(path), err)
			continue
		}
		if len(items) != 1 {
			t.Errorf("ReadHistoryFile(%s) = %d items, want 1", filepath.Base(path), len(items))
		}
	}

	if _, err := ReadHistoryFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
