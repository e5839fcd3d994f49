package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/models"
	"github.com/nvandessel/tracesim/internal/store"
)

const testHistory = `- iteration: 0
  loss: 2.0
  params: {beta_site: 0.5, beta_household: 1.2}
- iteration: 1
  loss: 1.0
  params: {beta_site: 0.6, beta_household: 1.5}
`

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// initProject initializes a project with an imported calibration history
// for CH/ZH and returns its root.
func initProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if _, err := execute(t, "init", "--root", root); err != nil {
		t.Fatalf("init error = %v", err)
	}
	history := filepath.Join(root, "history.yaml")
	if err := os.WriteFile(history, []byte(testHistory), 0600); err != nil {
		t.Fatalf("write history: %v", err)
	}
	if _, err := execute(t, "calibration", "import", history, "--root", root, "--country", "CH", "--area", "ZH"); err != nil {
		t.Fatalf("calibration import error = %v", err)
	}
	return root
}

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	want := []string{"version", "init", "run", "scenarios", "calibration", "results", "config"}
	for _, name := range want {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, flag := range []string{"json", "root", "config"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestInitCmd(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, "init", "--root", root)
	if err != nil {
		t.Fatalf("init error = %v", err)
	}
	if !strings.Contains(out, "Initialized") {
		t.Errorf("output = %q, want Initialized", out)
	}
	for _, path := range []string{store.ConfigPath(root), store.DatabasePath(root)} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", path, err)
		}
	}

	// A second init keeps the existing config.
	if _, err := execute(t, "config", "set", "experiment.repeats", "7", "--root", root); err != nil {
		t.Fatalf("config set error = %v", err)
	}
	if _, err := execute(t, "init", "--root", root); err != nil {
		t.Fatalf("second init error = %v", err)
	}
	out, err = execute(t, "config", "get", "experiment.repeats", "--root", root)
	if err != nil {
		t.Fatalf("config get error = %v", err)
	}
	if strings.TrimSpace(out) != "experiment.repeats = 7" {
		t.Errorf("config get = %q, want repeats 7", out)
	}
}

func TestCommandsRequireInit(t *testing.T) {
	root := t.TempDir()
	tests := [][]string{
		{"run", "--root", root, "--country", "CH", "--area", "ZH", "--dry-run"},
		{"results", "list", "--root", root},
		{"calibration", "show", "--root", root, "--country", "CH", "--area", "ZH"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args[:2], " "), func(t *testing.T) {
			_, err := execute(t, args...)
			if err == nil || !strings.Contains(err.Error(), "not initialized") {
				t.Errorf("error = %v, want not initialized", err)
			}
		})
	}
}

func TestRunCmd_DryRun(t *testing.T) {
	root := initProject(t)

	out, err := execute(t, "run", "--root", root, "--country", "CH", "--area", "ZH",
		"--dry-run", "--repeats", "2", "--cpu-count", "2", "--json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	var got runOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got.State != experiment.StateCompleted.String() {
		t.Errorf("State = %q, want completed", got.State)
	}
	if got.Name != "tracing-CH-ZH" {
		t.Errorf("Name = %q, want tracing-CH-ZH", got.Name)
	}
	if len(got.Scenarios) != 4 {
		t.Errorf("got %d scenarios, want 4", len(got.Scenarios))
	}
	if got.Summary.Total != 8 || got.Summary.Succeeded != 8 {
		t.Errorf("Summary = %+v, want 8 of 8 succeeded", got.Summary)
	}

	// Results are persisted.
	out, err = execute(t, "results", "list", "--root", root, "--json")
	if err != nil {
		t.Fatalf("results list error = %v", err)
	}
	var list struct {
		Experiments []store.ExperimentRecord `json:"experiments"`
		Count       int                      `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if list.Count != 1 || list.Experiments[0].Info.ID != got.ExperimentID {
		t.Fatalf("results list = %+v, want experiment %s", list, got.ExperimentID)
	}
	if list.Experiments[0].State != "completed" {
		t.Errorf("persisted state = %q, want completed", list.Experiments[0].State)
	}

	out, err = execute(t, "results", "show", "--root", root, "--json")
	if err != nil {
		t.Fatalf("results show error = %v", err)
	}
	var show struct {
		Runs []models.RunResult `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &show); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(show.Runs) != 8 {
		t.Errorf("got %d runs, want 8", len(show.Runs))
	}
	for _, r := range show.Runs {
		if !r.Succeeded() {
			t.Errorf("run %s status = %s", r.Key, r.Status())
		}
	}
}

func TestRunCmd_SeedsReproducible(t *testing.T) {
	root := initProject(t)

	seeds := func(cpus string) map[models.RunKey]int64 {
		out, err := execute(t, "run", "--root", root, "--country", "CH", "--area", "ZH",
			"--dry-run", "--repeats", "3", "--seed", "42", "--cpu-count", cpus, "--json")
		if err != nil {
			t.Fatalf("run error = %v", err)
		}
		var run runOutput
		if err := json.Unmarshal([]byte(out), &run); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		out, err = execute(t, "results", "show", run.ExperimentID, "--root", root, "--json")
		if err != nil {
			t.Fatalf("results show error = %v", err)
		}
		var show struct {
			Runs []models.RunResult `json:"runs"`
		}
		if err := json.Unmarshal([]byte(out), &show); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		m := make(map[models.RunKey]int64, len(show.Runs))
		for _, r := range show.Runs {
			m[r.Key] = r.Seed
		}
		return m
	}

	serial := seeds("1")
	parallel := seeds("4")
	if len(serial) != 12 {
		t.Fatalf("got %d runs, want 12", len(serial))
	}
	for k, s := range serial {
		if parallel[k] != s {
			t.Errorf("seed of %s = %d with 4 workers, %d with 1", k, parallel[k], s)
		}
	}
}

func TestRunCmd_Errors(t *testing.T) {
	root := initProject(t)

	t.Run("no engine configured", func(t *testing.T) {
		_, err := execute(t, "run", "--root", root, "--country", "CH", "--area", "ZH")
		if !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("error = %v, want configuration error", err)
		}
	})

	t.Run("no calibration for region", func(t *testing.T) {
		_, err := execute(t, "run", "--root", root, "--country", "CH", "--area", "GE", "--dry-run")
		if !errors.Is(err, models.ErrStoreUnavailable) {
			t.Errorf("error = %v, want store unavailable", err)
		}
	})

	t.Run("invalid repeats", func(t *testing.T) {
		_, err := execute(t, "run", "--root", root, "--country", "CH", "--area", "ZH", "--dry-run", "--repeats", "0")
		if !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("error = %v, want configuration error", err)
		}
	})

	t.Run("missing region flags", func(t *testing.T) {
		if _, err := execute(t, "run", "--root", root, "--dry-run"); err == nil {
			t.Error("expected error for missing --country/--area")
		}
	})
}

func TestRunCmd_FailFast(t *testing.T) {
	falseBin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available")
	}
	root := initProject(t)

	out, err := execute(t, "run", "--root", root, "--country", "CH", "--area", "ZH",
		"--engine-cmd", falseBin, "--fail-fast", "--cpu-count", "1", "--repeats", "2", "--json")
	var ff *experiment.FailFastError
	if !errors.As(err, &ff) {
		t.Fatalf("error = %v, want FailFastError", err)
	}

	var got runOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got.State != experiment.StateFailed.String() {
		t.Errorf("State = %q, want failed", got.State)
	}
	if got.Summary.Failed != 1 || got.Summary.Cancelled != 7 {
		t.Errorf("Summary = %+v, want 1 failed and 7 cancelled", got.Summary)
	}
}

func TestScenariosCmd(t *testing.T) {
	root := initProject(t)

	out, err := execute(t, "scenarios", "--root", root, "--country", "CH", "--area", "ZH", "--params", "--json")
	if err != nil {
		t.Fatalf("scenarios error = %v", err)
	}
	var got struct {
		Scenarios []scenarioInfo `json:"scenarios"`
		Count     int            `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got.Count != 4 {
		t.Fatalf("Count = %d, want 4", got.Count)
	}
	want := "isolate+test|delay=48|contacts=100000|policy=basic"
	if got.Scenarios[0].ID != want {
		t.Errorf("first scenario = %q, want %q", got.Scenarios[0].ID, want)
	}
	if got.Scenarios[0].Params["beta_household"] != 1.5 {
		t.Errorf("beta_household = %v, want 1.5 from the best iteration", got.Scenarios[0].Params["beta_household"])
	}
	if _, ok := got.Scenarios[2].Params["smart_tracing_tested_contacts"]; ok {
		t.Error("isolate-only scenario carries testing parameters")
	}

	scopes := map[string]int{}
	for _, m := range got.Scenarios[0].Measures {
		switch {
		case strings.HasSuffix(m, " [household]"):
			scopes["household"]++
		case strings.HasSuffix(m, " [individual]"):
			scopes["individual"]++
		default:
			t.Errorf("measure %q has no scope", m)
		}
	}
	if scopes["household"] == 0 || scopes["individual"] == 0 {
		t.Errorf("measure scopes = %v, want both household and individual", scopes)
	}
}

func TestCalibrationShowCmd(t *testing.T) {
	root := initProject(t)

	out, err := execute(t, "calibration", "show", "--root", root, "--country", "CH", "--area", "ZH")
	if err != nil {
		t.Fatalf("calibration show error = %v", err)
	}
	if !strings.Contains(out, "beta_site = 0.6") {
		t.Errorf("output = %q, want best iteration params", out)
	}
}

func TestResultsExportCmd(t *testing.T) {
	root := initProject(t)
	if _, err := execute(t, "run", "--root", root, "--country", "CH", "--area", "ZH", "--dry-run", "--repeats", "1"); err != nil {
		t.Fatalf("run error = %v", err)
	}

	dir := t.TempDir()
	out, err := execute(t, "results", "export", "--root", root, "--output", dir, "--json")
	if err != nil {
		t.Fatalf("results export error = %v", err)
	}
	var got struct {
		Path string `json:"path"`
		Runs int    `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if filepath.Dir(got.Path) != dir {
		t.Errorf("Path = %q, want file in %q", got.Path, dir)
	}
	if got.Runs != 4 {
		t.Errorf("Runs = %d, want 4", got.Runs)
	}

	if _, err := execute(t, "results", "verify", got.Path, "--root", root); err != nil {
		t.Errorf("verify error = %v", err)
	}
}

func TestResultsCmd_NoExperiments(t *testing.T) {
	root := initProject(t)
	if _, err := execute(t, "results", "show", "--root", root); err == nil {
		t.Error("expected error when no experiment was recorded")
	}
}

func TestConfigCmd(t *testing.T) {
	root := t.TempDir()
	if _, err := execute(t, "init", "--root", root); err != nil {
		t.Fatalf("init error = %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"set int", []string{"config", "set", "experiment.parallelism", "4"}, false},
		{"set bool", []string{"config", "set", "experiment.fail_fast", "true"}, false},
		{"unknown key", []string{"config", "set", "experiment.nope", "1"}, true},
		{"invalid value", []string{"config", "set", "experiment.repeats", "many"}, true},
		{"get unknown", []string{"config", "get", "nope"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append(tt.args, "--root", root)...)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	out, err := execute(t, "config", "get", "experiment.parallelism", "--root", root, "--json")
	if err != nil {
		t.Fatalf("config get error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got["value"] != float64(4) {
		t.Errorf("value = %v, want 4", got["value"])
	}
}
