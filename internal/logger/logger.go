package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger handles leveled logging to the console with optional file output
type Logger struct {
	Verbose bool
	fields  []interface{}
	out     *log.Logger
	errOut  *log.Logger
	state   *sharedState
}

// sharedState is common to a logger and every child created with With.
type sharedState struct {
	mu      sync.Mutex
	fileLog *os.File
	file    *log.Logger
	hasBar  bool
}

// New creates a new Logger writing to stdout, with errors on stderr
func New(verbose bool) *Logger {
	return NewWithWriters(verbose, os.Stdout, os.Stderr)
}

// NewWithWriters creates a Logger with explicit console writers.
func NewWithWriters(verbose bool, stdout, stderr io.Writer) *Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	opts := log.Options{ReportTimestamp: verbose, Level: level}

	return &Logger{
		Verbose: verbose,
		out:     log.NewWithOptions(stdout, opts),
		errOut:  log.NewWithOptions(stderr, opts),
		state:   &sharedState{},
	}
}

// With returns a child logger that attaches the key-value pairs to every entry.
func (l *Logger) With(kv ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)

	return &Logger{
		Verbose: l.Verbose,
		fields:  fields,
		out:     l.out.With(kv...),
		errOut:  l.errOut.With(kv...),
		state:   l.state,
	}
}

// SetFileLog enables logging to a file. The file always receives debug entries.
func (l *Logger) SetFileLog(path string) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.state.fileLog = f
	l.state.file = log.NewWithOptions(f, log.Options{ReportTimestamp: true, Level: log.DebugLevel})
	return nil
}

// SetProgressBar indicates that a progress bar is active
func (l *Logger) SetProgressBar(active bool) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.hasBar = active
}

// Close closes the log file if open
func (l *Logger) Close() error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if l.state.fileLog != nil {
		err := l.state.fileLog.Close()
		l.state.fileLog = nil
		l.state.file = nil
		return err
	}
	return nil
}

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(log.InfoLevel, format, args...)
}

// Debug logs detailed messages; they reach the console only in verbose mode
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(log.DebugLevel, format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(log.WarnLevel, format, args...)
}

// Error logs error messages to stderr
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(log.ErrorLevel, format, args...)
}

func (l *Logger) log(level log.Level, format string, args ...interface{}) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	switch {
	case level >= log.ErrorLevel:
		l.errOut.Log(level, msg)
	case l.Verbose || !l.state.hasBar:
		// A visible progress bar owns the terminal unless we are verbose.
		l.out.Log(level, msg)
	}

	if l.state.file != nil {
		l.state.file.With(l.fields...).Log(level, msg)
	}
}
