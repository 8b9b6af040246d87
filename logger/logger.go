package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/zhubert/handoff/paths"
)

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	logPath  string
	initDone bool
)

// DefaultLogPath returns the default log file path for the MCP server process.
func DefaultLogPath() (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "handoff.log"), nil
}

// SetDebug enables or disables debug level logging.
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Init initializes the logger with a custom path. Must be called before logging.
// If not called, the default path will be used on first log call.
// Returns an error if the log file cannot be opened.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	logPath = path
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar})
	root = slog.New(handler)
	initDone = true

	root.Info("logger initialized", "path", path)
	return nil
}

// InitConsole initializes the logger to write to w in addition to the log file
// at path. Colorized output is used when w is a terminal. This is for the HTTP
// server mode, where stdout is not carrying the MCP protocol.
func InitConsole(w *os.File, path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	logPath = path
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f

	out := io.MultiWriter(w, f)
	var handler slog.Handler
	if isatty.IsTerminal(w.Fd()) {
		handler = tint.NewHandler(out, &tint.Options{Level: levelVar})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: levelVar})
	}
	root = slog.New(handler)
	initDone = true

	root.Info("logger initialized", "path", path)
	return nil
}

// ensureInit initializes the logger with default settings if not already
// initialized. Caller must hold mu.
func ensureInit() {
	if initDone {
		return
	}

	defaultPath, err := DefaultLogPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to get default log path: %v\n", err)
		return
	}

	dir := filepath.Dir(defaultPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create log directory %s: %v\n", dir, err)
		return
	}

	logPath = defaultPath
	f, err := os.OpenFile(defaultPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open log file %s: %v\n", defaultPath, err)
		return
	}
	logFile = f
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar})
	root = slog.New(handler)
	initDone = true

	root.Info("logger initialized", "path", defaultPath)
}

// Get returns the root logger instance.
// Use this when you don't have task context.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	if root == nil {
		return slog.Default()
	}
	return root
}

// WithTask returns a logger with the task ID attached.
// All log entries from this logger will include taskID as a structured field.
//
// Example:
//
//	log := logger.WithTask(task.ID)
//	log.Info("ui launched", "pid", pid)
//	// Output: level=INFO msg="ui launched" taskID=abc123 pid=4242
func WithTask(taskID string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	if root == nil {
		return slog.Default().With("taskID", taskID)
	}
	return root.With("taskID", taskID)
}

// WithComponent returns a logger with the component name attached.
// Useful for non-task-scoped logging where you want to identify the source.
func WithComponent(component string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	if root == nil {
		return slog.Default().With("component", component)
	}
	return root.With("component", component)
}

// Path returns the active log file path, or empty if logging never initialized.
// The coordinator includes it in diagnostic results so a human can be pointed
// at the log when the UI fails to respond.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	logPath = ""
	root = nil
	levelVar = new(slog.LevelVar)
}

// ClearLogs removes all handoff log files from the logs directory.
func ClearLogs() (int, error) {
	count := 0

	defaultPath, err := DefaultLogPath()
	if err != nil {
		return 0, fmt.Errorf("failed to get default log path: %w", err)
	}
	dir := filepath.Dir(defaultPath)

	if err := os.Remove(defaultPath); err == nil {
		count++
	} else if !os.IsNotExist(err) {
		return count, err
	}

	// Per-task UI logs copied out of the temp dir land here as ui-*.log
	uiPattern := filepath.Join(dir, "ui-*.log")
	uiLogs, err := filepath.Glob(uiPattern)
	if err != nil {
		return count, err
	}

	for _, p := range uiLogs {
		if err := os.Remove(p); err == nil {
			count++
		} else if !os.IsNotExist(err) {
			return count, err
		}
	}

	return count, nil
}
