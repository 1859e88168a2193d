package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogDirEnv overrides the directory log files are written to.
const LogDirEnv = "BROWSERKIT_LOG_DIR"

// Logger provides component-tagged logging for browserkit.
// File-backed loggers write to ~/.browserkit/logs/<run-id>-browserkit.log.
//
// All log methods write unconditionally; there is no level filtering.
// Loggers derived with WithPrefix share the parent's sink.
type Logger struct {
	runID     string
	component string
	prefix    string
	sink      *sink
	logPath   string
}

// sink is the shared output of a logger and every logger derived from it.
type sink struct {
	mu        sync.Mutex
	file      *os.File
	logger    *log.Logger
	closeOnce sync.Once
}

var (
	// Run ID shared by every file logger in this process
	runID     string
	runIDOnce sync.Once

	logDir   string
	initOnce sync.Once
	initErr  error
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		if dir := os.Getenv(LogDirEnv); dir != "" {
			logDir = dir
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".browserkit", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// NewLogger creates a file-backed logger for a component.
//
// If the log directory or file cannot be created, it returns a logger that
// writes to stderr along with the error, so callers can warn and carry on.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-browserkit.log", id))

	// Append mode: every component of a run shares one file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		runID:     id,
		component: component,
		sink:      &sink{file: file, logger: log.New(file, "", 0)},
		logPath:   logPath,
	}, nil
}

// NewWriterLogger creates a logger that writes to w. Close never closes w.
func NewWriterLogger(component string, w io.Writer) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		sink:      &sink{logger: log.New(w, "", 0)},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriterLogger("discard", io.Discard)
}

func newFallbackLogger(component string, err error) *Logger {
	l := log.New(os.Stderr, "", 0)
	l.Printf("WARNING: failed to initialize file logging: %v", err)
	l.Printf("falling back to stderr logging")

	return &Logger{
		runID:     getRunID(),
		component: component,
		sink:      &sink{logger: l},
	}
}

// WithPrefix returns a logger for the same component whose messages start
// with prefix, e.g. "[pid=1234]".
func (l *Logger) WithPrefix(prefix string) *Logger {
	child := *l
	if child.prefix != "" {
		prefix = child.prefix + " " + prefix
	}
	child.prefix = prefix
	return &child
}

func (l *Logger) write(level, format string, v ...interface{}) {
	if l == nil || l.sink == nil {
		return
	}
	message := fmt.Sprintf(format, v...)
	if l.prefix != "" {
		message = l.prefix + " " + message
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	entry := fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.logger.Println(entry)
}

// Printf logs an info-level message.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write("DEBUG", format, v...)
}

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write("WARN", format, v...)
}

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write("ERROR", format, v...)
}

// RunID returns the id shared by all loggers of this process.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the log file path, or "" for non-file loggers.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times and on derived loggers.
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	var err error
	l.sink.closeOnce.Do(func() {
		if l.sink.file != nil {
			err = l.sink.file.Close()
		}
	})
	return err
}

// GetRunID returns the current process-wide run id.
func GetRunID() string {
	return getRunID()
}

// GetLogDirectory returns the directory where logs are stored.
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
