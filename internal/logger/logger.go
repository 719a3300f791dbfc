// Package logger provides the leveled, named logger shared by the bridge services.
// Levels are ordered log < error < warn < info < debug; a logger prints every level up to
// and including its own. CALQ_LOG_LEVEL overrides whatever level the caller asked for.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel is the textual name of a logging level.
type LogLevel string

const (
	LogLevelLog   LogLevel = "log"
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// EnvLogLevel is the environment variable that overrides the configured level.
const EnvLogLevel = "CALQ_LOG_LEVEL"

var logLevels = []LogLevel{LogLevelLog, LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug}

// Logger writes timestamped lines tagged with its name. Debug output is structured JSON.
type Logger struct {
	name   string
	level  int
	mu     *sync.Mutex
	output io.Writer
}

// New creates a logger at "info" writing to stdout.
func New(name string) *Logger {
	return NewWithLevel(name, string(LogLevelInfo), os.Stdout)
}

// NewWithLevel creates a logger with an explicit level and output.
// Unknown level names fall back to "info".
func NewWithLevel(name string, levelStr string, output io.Writer) *Logger {
	if envLevel := os.Getenv(EnvLogLevel); envLevel != "" {
		levelStr = envLevel
	}

	return &Logger{
		name:   name,
		level:  levelIndex(levelStr),
		mu:     &sync.Mutex{},
		output: output,
	}
}

// Discard returns a logger that drops everything, for tests and quiet tools.
func Discard(name string) *Logger {
	return &Logger{name: name, level: -1, mu: &sync.Mutex{}, output: io.Discard}
}

func levelIndex(levelStr string) int {
	for i, l := range logLevels {
		if string(l) == levelStr {
			return i
		}
	}
	return 3
}

// Named returns a logger with the same level and output under a new name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, level: l.level, mu: l.mu, output: l.output}
}

// GetName returns the logger's name.
func (l *Logger) GetName() string {
	return l.name
}

// Level returns the active level name.
func (l *Logger) Level() LogLevel {
	if l.level < 0 {
		return ""
	}
	return logLevels[l.level]
}

// timestamp renders HH:MM:SS.mmm.
func timestamp() string {
	return time.Now().Format("15:04:05.000")
}

func (l *Logger) line(min int, args []interface{}) {
	if l.level < min {
		return
	}

	var message string
	switch len(args) {
	case 0:
	case 1:
		message = fmt.Sprintf("%v", args[0])
	default:
		message = fmt.Sprint(args...)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.output, "[%s] [%s] %s\n", timestamp(), l.name, message)
}

func (l *Logger) Log(args ...interface{})   { l.line(0, args) }
func (l *Logger) Error(args ...interface{}) { l.line(1, args) }
func (l *Logger) Warn(args ...interface{})  { l.line(2, args) }
func (l *Logger) Info(args ...interface{})  { l.line(3, args) }

// Debug writes a JSON object with timestamp, name, message and, when given, args.
// A single arg is embedded as-is; several are embedded as an array.
func (l *Logger) Debug(message string, args ...interface{}) {
	if l.level < 4 {
		return
	}

	structured := map[string]interface{}{
		"timestamp": time.Now(),
		"name":      l.name,
		"message":   message,
	}
	switch len(args) {
	case 0:
	case 1:
		structured["args"] = args[0]
	default:
		structured["args"] = args
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(structured)
	if err != nil {
		fmt.Fprintf(l.output, "[%s] [%s] DEBUG: %s (JSON marshal error: %v)\n", timestamp(), l.name, message, err)
		return
	}
	fmt.Fprintln(l.output, string(data))
}

// The printf variants also make *Logger usable as posthog-go's Logger.

func (l *Logger) Logf(format string, args ...interface{})   { l.Log(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
