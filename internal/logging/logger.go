// Package logging provides leveled logging and run tracing for tracesim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLogger for structured JSONL run events (.tracesim/runs.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every
// dispatched run is logged with its seed and parameter hash.
const LevelTrace = slog.LevelDebug - 4

// Log output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// ValidFormat reports whether format is "", "text" or "json".
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", FormatText, FormatJSON:
		return true
	}
	return false
}

// NewLogger creates a leveled text slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return New(level, FormatText, w)
}

// New creates a leveled slog.Logger writing to w in the given format.
// Unknown formats fall back to text.
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: labelTrace,
	}
	if strings.ToLower(format) == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// labelTrace prints LevelTrace as "TRACE" instead of "DEBUG-4".
func labelTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// RunEvent is one line of the run event log.
type RunEvent struct {
	Time       time.Time `json:"time"`
	Event      string    `json:"event"`
	Experiment string    `json:"experiment"`
	ScenarioID string    `json:"scenario_id,omitempty"`
	Repeat     int       `json:"repeat"`
	Seed       int64     `json:"seed"`
	Status     string    `json:"status,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// EventLogger appends RunEvents to a JSONL file.
// It is safe for concurrent use. A nil EventLogger is safe to use;
// all methods are no-ops on nil receiver.
type EventLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	n    int
}

// NewEventLogger creates an event logger appending to dir/name.
// At "info" level (the default) it returns nil and no file is created.
// It also returns nil if the file cannot be opened.
func NewEventLogger(dir, name, level string) *EventLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &EventLogger{file: f, enc: json.NewEncoder(f)}
}

// Record writes ev as a single JSONL line, stamping Time when unset.
func (el *EventLogger) Record(ev RunEvent) {
	if el == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file == nil {
		return
	}
	if err := el.enc.Encode(ev); err == nil {
		el.n++
	}
}

// Count returns the number of events written so far.
func (el *EventLogger) Count() int {
	if el == nil {
		return 0
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.n
}

// Close closes the underlying file. Safe to call on nil receiver.
func (el *EventLogger) Close() {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file != nil {
		el.file.Close()
		el.file = nil
	}
}
