package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by both app variants.
// Init(level) sets the process-wide threshold; Named returns a logger that
// prefixes every line with a component name ("store", "web", ...).

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	output *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
	exit               = os.Exit
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = ParseLevel(l)
}

// ParseLevel maps a LOG_LEVEL string to a Level.
func ParseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	}
	return LevelInfo
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return level.String()
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

// Logger writes through the package output with an optional component tag.
type Logger struct {
	component string
}

var root = &Logger{}

// Named returns a logger tagged with the given component.
func Named(component string) *Logger {
	return &Logger{component: component}
}

func (lg *Logger) printf(l Level, format string, v ...interface{}) {
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(l.String()))
	b.WriteString("] ")
	if lg.component != "" {
		b.WriteString(lg.component)
		b.WriteString(": ")
	}
	b.WriteString(fmt.Sprintf(format, v...))
	output.Print(b.String())
}

func (lg *Logger) Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		lg.printf(LevelDebug, format, v...)
	}
}

func (lg *Logger) Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		lg.printf(LevelInfo, format, v...)
	}
}

func (lg *Logger) Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		lg.printf(LevelWarn, format, v...)
	}
}

func (lg *Logger) Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		lg.printf(LevelError, format, v...)
	}
}

// Fatalf always logs, then exits the process.
func (lg *Logger) Fatalf(format string, v ...interface{}) {
	lg.printf(LevelFatal, format, v...)
	exit(1)
}

func Debugf(format string, v ...interface{}) { root.Debugf(format, v...) }
func Infof(format string, v ...interface{})  { root.Infof(format, v...) }
func Warnf(format string, v ...interface{})  { root.Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { root.Errorf(format, v...) }
func Fatalf(format string, v ...interface{}) { root.Fatalf(format, v...) }
