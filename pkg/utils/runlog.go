package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RunDir holds one JSONL journal per run under LogDir.
const RunDir = "runs"

// RunLogger writes one JSON line per pipeline event of a single run.
type RunLogger struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	secrets []string
}

// NewRunLogger opens (appending) the journal at path, creating parent
// directories. An empty path names a timestamped file under .svgmap/runs.
func NewRunLogger(path string) (*RunLogger, error) {
	if path == "" {
		name := time.Now().Format("20060102_150405")
		path = filepath.Join(LogDir, RunDir, fmt.Sprintf("run-%s.jsonl", name))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	return &RunLogger{f: f, path: path}, nil
}

// Path returns the journal file path.
func (r *RunLogger) Path() string {
	return r.path
}

// Redact registers a value, such as an API key, that must never be written.
func (r *RunLogger) Redact(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = append(r.secrets, secret)
}

// Close closes the underlying file, if open.
func (r *RunLogger) Close() error {
	if r == nil || r.f == nil {
		return nil
	}
	return r.f.Close()
}

// LogEvent writes a JSON line with the provided type and data.
func (r *RunLogger) LogEvent(eventType string, data any) {
	if r == nil || r.f == nil {
		return
	}
	payload := map[string]any{
		"ts":   time.Now().Format(time.RFC3339Nano),
		"type": eventType,
		"data": data,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	line := string(b)
	for _, s := range r.secrets {
		line = strings.ReplaceAll(line, s, "<REDACTED>")
	}
	_, _ = r.f.WriteString(line + "\n")
}
