// Package logging provides component-scoped file loggers for relance.
//
// Every component of a process writes to one shared file,
// <dir>/<session-id>-relance.log, where dir defaults to ~/.relance/logs and
// can be overridden with RELANCE_LOG_DIR. Entries look like:
//
//	[2026-01-02 15:04:05.000] [executor] [WARN] call c1 denied: ANTI_LOOP_ID
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// LogDirEnv overrides the directory used for session log files.
const LogDirEnv = "RELANCE_LOG_DIR"

const timestampFormat = "2006-01-02 15:04:05.000"

// Level is a log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// ParseLevel parses "debug", "info", "warn" or "error". The empty string
// is LevelDebug.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelDebug, fmt.Errorf("unknown log level %q", s)
}

var (
	minLevel atomic.Int32

	sessionOnce sync.Once
	sessionID   string

	// one open file per log path, shared by every component
	filesMu sync.Mutex
	files   = map[string]*sharedFile{}
)

type sharedFile struct {
	f  *os.File
	mu sync.Mutex
}

func (s *sharedFile) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Write(p)
}

// SetLevel drops entries below level for every logger in the process.
func SetLevel(level Level) {
	minLevel.Store(int32(level))
}

// GetSessionID returns the id shared by every logger of this process.
func GetSessionID() string {
	sessionOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// DefaultDirectory returns RELANCE_LOG_DIR, or ~/.relance/logs.
func DefaultDirectory() (string, error) {
	if dir := os.Getenv(LogDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".relance", "logs"), nil
}

// Logger writes leveled entries tagged with a component name. A nil
// *Logger discards everything.
type Logger struct {
	component string
	out       *log.Logger
	path      string
}

// NewLogger creates a logger writing to the session file in
// DefaultDirectory.
//
// If the file cannot be opened, it returns a logger writing to stderr along
// with the error, so callers can warn and keep going.
func NewLogger(component string) (*Logger, error) {
	dir, err := DefaultDirectory()
	if err != nil {
		return newFallbackLogger(component, err), err
	}
	return NewFileLogger(component, dir)
}

// NewFileLogger creates a logger writing to the session file in dir,
// creating dir if needed. Loggers for the same dir share one file handle.
func NewFileLogger(component, dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		err = fmt.Errorf("failed to create log directory: %w", err)
		return newFallbackLogger(component, err), err
	}

	path := filepath.Join(dir, GetSessionID()+"-relance.log")
	w, err := openShared(path)
	if err != nil {
		return newFallbackLogger(component, err), err
	}
	return &Logger{component: component, out: log.New(w, "", 0), path: path}, nil
}

func openShared(path string) (*sharedFile, error) {
	filesMu.Lock()
	defer filesMu.Unlock()

	if sf, ok := files[path]; ok {
		return sf, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	sf := &sharedFile{f: f}
	files[path] = sf
	return sf, nil
}

// NewWriterLogger creates a logger writing to w. Callers own w.
func NewWriterLogger(component string, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{component: component, out: log.New(w, "", 0)}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger(component string) *Logger {
	return NewWriterLogger(component, io.Discard)
}

func newFallbackLogger(component string, err error) *Logger {
	l := NewWriterLogger(component, os.Stderr)
	l.Warnf("file logging unavailable, writing to stderr: %v", err)
	return l
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	if l == nil || level < Level(minLevel.Load()) {
		return
	}
	l.out.Printf("[%s] [%s] [%s] %s",
		time.Now().Format(timestampFormat), l.component, level, fmt.Sprintf(format, v...))
}

// Printf logs at info level.
func (l *Logger) Printf(format string, v ...interface{}) { l.write(LevelInfo, format, v...) }

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, v ...interface{}) { l.write(LevelDebug, format, v...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, v ...interface{}) { l.write(LevelInfo, format, v...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, v ...interface{}) { l.write(LevelWarn, format, v...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, v ...interface{}) { l.write(LevelError, format, v...) }

// Component returns the component name attached to every entry.
func (l *Logger) Component() string {
	if l == nil {
		return ""
	}
	return l.component
}

// LogPath returns the log file path, empty for writer-backed loggers.
func (l *Logger) LogPath() string {
	if l == nil {
		return ""
	}
	return l.path
}

// CloseAll closes every shared log file. Loggers writing afterwards
// fail silently; call it once at process exit.
func CloseAll() error {
	filesMu.Lock()
	defer filesMu.Unlock()

	var firstErr error
	for path, sf := range files {
		sf.mu.Lock()
		if err := sf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		sf.mu.Unlock()
		delete(files, path)
	}
	return firstErr
}
