package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogDir is the workspace directory holding the rotating log file.
const LogDir = ".svgmap"

// Logger writes diagnostics to a rotating log file. Process steps are echoed
// to the console as well.
type Logger struct {
	logger        *log.Logger
	console       io.Writer
	closer        io.Closer
	jsonMode      bool
	correlationID string
}

var (
	globalLogger *Logger
	once         sync.Once
)

// GetLogger returns the singleton Logger, rotating .svgmap/svgmap.log.
func GetLogger() *Logger {
	once.Do(func() {
		logFile := &lumberjack.Logger{
			Filename:   filepath.Join(LogDir, "svgmap.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		globalLogger = NewLogger(logFile, os.Stderr)
		globalLogger.closer = logFile
	})
	return globalLogger
}

// NewLogger creates a Logger writing records to w and console echoes to
// console. A nil console disables echoing.
func NewLogger(w io.Writer, console io.Writer) *Logger {
	if console == nil {
		console = io.Discard
	}
	l := &Logger{
		logger:  log.New(w, "", log.LstdFlags),
		console: console,
	}
	if os.Getenv("SVGMAP_JSON_LOGS") == "1" {
		l.jsonMode = true
	}
	if cid := os.Getenv("SVGMAP_CORRELATION_ID"); cid != "" {
		l.correlationID = cid
	}
	return l
}

// WithCorrelationID returns a logger sharing the same sinks that tags every
// record with cid.
func (w *Logger) WithCorrelationID(cid string) *Logger {
	cp := *w
	cp.correlationID = cid
	cp.closer = nil
	return &cp
}

// SetJSONMode switches between plain and JSON line records.
func (w *Logger) SetJSONMode(on bool) {
	w.jsonMode = on
}

// Close closes the underlying log file, if any.
func (w *Logger) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Log logs a general message only to the log file.
func (w *Logger) Log(message string) {
	w.write("info", message)
}

// Logf logs a formatted general message only to the log file.
func (w *Logger) Logf(format string, v ...interface{}) {
	w.write("info", fmt.Sprintf(format, v...))
}

// Warnf logs a formatted warning only to the log file.
func (w *Logger) Warnf(format string, v ...interface{}) {
	w.write("warn", fmt.Sprintf(format, v...))
}

// LogError logs an error only to the log file.
func (w *Logger) LogError(err error) {
	if w.jsonMode {
		w.encode(map[string]any{"level": "error", "error": err.Error(), "cid": w.correlationID})
		return
	}
	w.logger.Printf("Error: %s%s", w.cidPrefix(), err)
}

// LogProcessStep logs a pipeline step and echoes it to the console.
func (w *Logger) LogProcessStep(step string) {
	w.write("info", "Process Step: "+step)
	fmt.Fprintln(w.console, step)
}

func (w *Logger) write(level, message string) {
	if w.jsonMode {
		w.encode(map[string]any{"level": level, "msg": message, "cid": w.correlationID})
		return
	}
	if level == "warn" {
		w.logger.Printf("Warning: %s%s", w.cidPrefix(), message)
		return
	}
	w.logger.Print(w.cidPrefix() + message)
}

func (w *Logger) encode(record map[string]any) {
	_ = json.NewEncoder(w.logger.Writer()).Encode(record)
}

func (w *Logger) cidPrefix() string {
	if w.correlationID == "" {
		return ""
	}
	return "[" + w.correlationID + "] "
}
