// Package logging configures the process-wide zerolog logger and optional
// per-run log files.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu      sync.Mutex
	console io.Writer = os.Stderr
)

// Setup sets the global level and output. Unknown levels fall back to info.
// pretty selects the human-readable console writer.
func Setup(level string, pretty bool) {
	SetupWriter(os.Stderr, level, pretty)
}

// SetupWriter is Setup with an explicit destination
func SetupWriter(w io.Writer, level string, pretty bool) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	console = w
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// RunLogger mirrors the global logger into a file for one run
type RunLogger struct {
	runID string
	path  string
	file  *os.File
	start time.Time
}

// StartRunLog opens dir/<runID>_<timestamp>.log and tees the global logger into it
// until Close
func StartRunLog(dir, runID string) (*RunLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.log", runID, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	mu.Lock()
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	mu.Unlock()

	rl := &RunLogger{runID: runID, path: path, file: f, start: time.Now()}
	log.Info().Str("run_id", runID).Str("log_file", path).Msg("Run started")
	return rl, nil
}

// Path returns the log file location
func (r *RunLogger) Path() string { return r.path }

// Close restores console-only logging and closes the file
func (r *RunLogger) Close() error {
	log.Info().Str("run_id", r.runID).Dur("duration", time.Since(r.start)).Msg("Run finished")

	mu.Lock()
	log.Logger = zerolog.New(console).With().Timestamp().Logger()
	mu.Unlock()

	return r.file.Close()
}
