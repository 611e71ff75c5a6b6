// Package logging provides the leveled component logger shared by the
// kubegate packages. Console output goes to stderr with optional
// color; a file sink can be attached for persistent session logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LEVELS
// ═══════════════════════════════════════════════════════════════════════════════

// Level orders message severities. Messages below a logger's level are
// dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

var levelColors = [...]string{
	"\033[36m", // debug: cyan
	"\033[32m", // info: green
	"\033[33m", // warn: yellow
	"\033[31m", // error: red
	"\033[35m", // fatal: magenta
}

const colorReset = "\033[0m"

func (l Level) String() string {
	if l < LevelDebug || l > LevelFatal {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a configuration string to a Level. Unrecognized
// strings fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ═══════════════════════════════════════════════════════════════════════════════

// Config controls logger construction.
type Config struct {
	Level      Level
	FilePath   string
	Colored    bool
	ShowCaller bool
	ShowTime   bool
	Component  string
}

// DefaultConfig is the normal interactive setup: info level, colored,
// timestamped.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, Colored: true, ShowTime: true}
}

// VerboseConfig is the troubleshooting setup: debug level with caller
// locations.
func VerboseConfig() *Config {
	return &Config{Level: LevelDebug, Colored: true, ShowCaller: true, ShowTime: true}
}

// Logger writes leveled, component-tagged lines to stderr and, when
// attached, to a log file. File lines never carry color codes.
type Logger struct {
	mu         sync.Mutex
	level      Level
	console    io.Writer
	file       *os.File
	colored    bool
	showCaller bool
	showTime   bool
	component  string
}

// New builds a Logger from cfg. A nil cfg means DefaultConfig. A file
// path that cannot be opened degrades to console-only with a warning.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Logger{
		level:      cfg.Level,
		console:    os.Stderr,
		colored:    cfg.Colored,
		showCaller: cfg.ShowCaller,
		showTime:   cfg.ShowTime,
		component:  cfg.Component,
	}
	if cfg.FilePath != "" {
		if err := l.SetFileOutput(cfg.FilePath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open log file: %v\n", err)
		}
	}
	return l
}

// SetFileOutput attaches (or replaces) the file sink, creating parent
// directories as needed.
func (l *Logger) SetFileOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	return nil
}

// Close releases the file sink, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// WithComponent returns a logger tagged with name. The child shares
// the parent's sinks and level.
func (l *Logger) WithComponent(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		level:      l.level,
		console:    l.console,
		file:       l.file,
		colored:    l.colored,
		showCaller: l.showCaller,
		showTime:   l.showTime,
		component:  name,
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(LevelFatal, format, args...)
	os.Exit(1)
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder
	if l.showTime {
		sb.WriteString(time.Now().Format("15:04:05.000"))
		sb.WriteByte(' ')
	}
	tag := fmt.Sprintf("%-5s", level.String())
	if l.colored {
		tag = levelColors[level] + tag + colorReset
	}
	sb.WriteString(tag)
	if l.component != "" {
		sb.WriteString(" [")
		sb.WriteString(l.component)
		sb.WriteByte(']')
	}
	if l.showCaller {
		// Skip log and the exported wrapper.
		if _, file, line, ok := runtime.Caller(2); ok {
			sb.WriteString(fmt.Sprintf(" %s:%d", filepath.Base(file), line))
		}
	}
	sb.WriteByte(' ')
	sb.WriteString(fmt.Sprintf(format, args...))
	line := sb.String()

	if l.console != nil {
		fmt.Fprintln(l.console, line)
	}
	if l.file != nil {
		fmt.Fprintln(l.file, stripANSI(line))
	}
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// ═══════════════════════════════════════════════════════════════════════════════
// GLOBAL INSTANCE
// ═══════════════════════════════════════════════════════════════════════════════

var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the process-wide logger.
func Global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetLevel adjusts the process-wide logger's level in place.
func SetLevel(level Level) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger.level = level
}
