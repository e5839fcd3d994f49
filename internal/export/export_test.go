package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/tracesim/internal/experiment"
	"github.com/nvandessel/tracesim/internal/models"
	"github.com/nvandessel/tracesim/internal/store"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	info := experiment.Info{ID: "exp-1", Name: "tracing-CH-BE", Region: models.Region{Country: "CH", Area: "BE"}, Repeats: 2}
	if err := s.StartExperiment(ctx, info); err != nil {
		t.Fatalf("StartExperiment() error = %v", err)
	}
	ok := models.RunResult{
		Key:        models.RunKey{ScenarioID: "isolate|delay=3|contacts=none|policy=none", Repeat: 0},
		Seed:       42,
		Trajectory: &models.Trajectory{Handle: "file://0", Data: json.RawMessage(`{"deaths":[0,1,2]}`)},
	}
	failedKey := models.RunKey{ScenarioID: "isolate|delay=3|contacts=none|policy=none", Repeat: 1}
	failed := models.RunResult{Key: failedKey, Seed: 43, Failure: models.NewRunFailure(failedKey, 43, errors.New("boom"))}
	for _, r := range []models.RunResult{ok, failed} {
		if err := s.RecordRun(ctx, info.ID, r); err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
	}
	if err := s.FinishExperiment(ctx, info.ID, experiment.StateCompleted, experiment.Summary{Total: 2, Succeeded: 1, Failed: 1}); err != nil {
		t.Fatalf("FinishExperiment() error = %v", err)
	}
	return s
}

func TestExportRoundTrip(t *testing.T) {
	s := seededStore(t)
	path := filepath.Join(t.TempDir(), "nested", "out.json.gz")

	archive, err := Export(context.Background(), s, "exp-1", path)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(archive.Runs) != 2 {
		t.Fatalf("archive has %d runs, want 2", len(archive.Runs))
	}

	header, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.ExperimentID != "exp-1" || header.RunCount != 2 || header.FailedCount != 1 {
		t.Errorf("header = %+v", header)
	}
	if !strings.HasPrefix(header.Checksum, "sha256:") {
		t.Errorf("checksum = %s, want sha256: prefix", header.Checksum)
	}

	if err := VerifyChecksum(path); err != nil {
		t.Errorf("VerifyChecksum() error = %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Experiment.Info.Name != "tracing-CH-BE" || got.Experiment.State != "completed" {
		t.Errorf("experiment = %+v", got.Experiment)
	}
	if string(got.Runs[0].Trajectory.Data) != `{"deaths":[0,1,2]}` {
		t.Errorf("trajectory data = %s", got.Runs[0].Trajectory.Data)
	}
	if got.Runs[1].Failure == nil || got.Runs[1].Failure.Message != "boom" {
		t.Errorf("failure = %+v", got.Runs[1].Failure)
	}
}

func TestExport_UnknownExperiment(t *testing.T) {
	s := seededStore(t)
	_, err := Export(context.Background(), s, "missing", filepath.Join(t.TempDir(), "x.json.gz"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRead_Corrupted(t *testing.T) {
	s := seededStore(t)
	path := filepath.Join(t.TempDir(), "out.json.gz")
	if _, err := Export(context.Background(), s, "exp-1", path); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if err := VerifyChecksum(path); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("VerifyChecksum() = %v, want checksum mismatch", err)
	}
	if _, err := Read(path); err == nil {
		t.Error("expected Read() to fail on corrupted archive")
	}
}

func TestReadHeader_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "hello\n"},
		{"wrong version", `{"version":9}` + "\n"},
		{"no newline", `{"version":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadHeader(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGeneratePath(t *testing.T) {
	p := GeneratePath("/tmp/exports", "abc")
	if filepath.Dir(p) != "/tmp/exports" {
		t.Errorf("dir = %s", filepath.Dir(p))
	}
	base := filepath.Base(p)
	if !strings.HasPrefix(base, "tracesim-abc-") || !strings.HasSuffix(base, ".json.gz") {
		t.Errorf("base = %s", base)
	}
}
