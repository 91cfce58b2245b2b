// Package logging provides structured logging for bfi with consistent
// formatting and debug categories. It wraps the standard log package with
// leveled key-value logging, and lets debug output be switched on per
// category (basic, interpreter, output) instead of through global flags.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level represents a log level.
type Level int

const (
	// LevelDebug is for verbose debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general informational messages.
	LevelInfo
	// LevelWarn is for recoverable errors and warnings.
	LevelWarn
	// LevelError is for significant errors that may impact functionality.
	LevelError
	// levelOff disables all output.
	levelOff
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	for level, name := range levelNames {
		if strings.EqualFold(s, name) {
			return level, nil
		}
	}
	return LevelWarn, fmt.Errorf("unknown log level %q", s)
}

// Category names a family of debug records.
type Category string

const (
	// CategoryBasic covers host-level events: runs starting and ending.
	CategoryBasic Category = "basic"
	// CategoryInterpreter covers per-instruction tracing and bracket scans.
	CategoryInterpreter Category = "interpreter"
	// CategoryOutput covers output buffering and chunk delivery.
	CategoryOutput Category = "output"
)

// Categories selects which debug categories are emitted. Interpreter and
// Output only take effect when Basic is also set.
type Categories struct {
	Basic       bool
	Interpreter bool
	Output      bool
}

// Enabled reports whether debug records in cat should be emitted.
func (c Categories) Enabled(cat Category) bool {
	if !c.Basic {
		return false
	}
	switch cat {
	case CategoryBasic:
		return true
	case CategoryInterpreter:
		return c.Interpreter
	case CategoryOutput:
		return c.Output
	}
	return false
}

// Any reports whether any category is enabled.
func (c Categories) Any() bool {
	return c.Basic
}

// Logger provides structured logging with context.
type Logger struct {
	mu         sync.RWMutex
	minLevel   Level
	fields     map[string]interface{}
	output     *log.Logger
	categories Categories
	category   Category
}

var (
	// defaultLogger is the package-level logger.
	defaultLogger = New()
)

// New creates a new Logger with default settings.
func New() *Logger {
	return &Logger{
		minLevel: LevelWarn, // Default to warn level
		fields:   make(map[string]interface{}),
		output:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{
		minLevel: levelOff,
		fields:   make(map[string]interface{}),
		output:   log.New(io.Discard, "", 0),
	}
}

// Default returns the package-level logger.
func Default() *Logger {
	return defaultLogger
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetOutput sets the output logger.
func (l *Logger) SetOutput(output *log.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = output
}

// SetCategories sets which debug categories are emitted.
func (l *Logger) SetCategories(c Categories) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.categories = c
}

// child copies l with extra fields. Callers hold l.mu for reading.
func (l *Logger) child(extra int) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+extra)
	for k, v := range l.fields {
		newFields[k] = v
	}
	return &Logger{
		minLevel:   l.minLevel,
		fields:     newFields,
		output:     l.output,
		categories: l.categories,
		category:   l.category,
	}
}

// With returns a new Logger with additional context fields.
func (l *Logger) With(key string, value interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := l.child(1)
	c.fields[key] = value
	return c
}

// WithFields returns a new Logger with multiple additional context fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := l.child(len(fields))
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

// For returns a Logger scoped to cat. Its debug records are dropped unless
// cat is enabled; other levels behave as usual.
func (l *Logger) For(cat Category) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := l.child(1)
	c.fields["category"] = string(cat)
	c.category = cat
	return c
}

// Enabled reports whether a record at level would be written. Hot paths use
// it to skip building arguments.
func (l *Logger) Enabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled(level)
}

func (l *Logger) enabled(level Level) bool {
	if level < l.minLevel {
		return false
	}
	if level == LevelDebug && l.category != "" {
		return l.categories.Enabled(l.category)
	}
	return true
}

// log writes a log entry at the given level.
func (l *Logger) log(level Level, msg string, keyVals ...interface{}) {
	l.mu.RLock()
	ok := l.enabled(level)
	output := l.output
	fields := l.fields
	l.mu.RUnlock()

	if !ok {
		return
	}

	// Build the log message
	var sb strings.Builder
	sb.WriteString(levelNames[level])
	sb.WriteString(": ")
	sb.WriteString(msg)

	// Add context fields
	allFields := make(map[string]interface{}, len(fields)+len(keyVals)/2)
	for k, v := range fields {
		allFields[k] = v
	}

	// Add inline key-value pairs
	for i := 0; i+1 < len(keyVals); i += 2 {
		if key, ok := keyVals[i].(string); ok {
			allFields[key] = keyVals[i+1]
		}
	}

	// Format fields in key order so lines are stable
	if len(allFields) > 0 {
		keys := make([]string, 0, len(allFields))
		for k := range allFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(formatValue(allFields[k]))
		}
	}

	output.Print(sb.String())
}

// formatValue formats a value for logging.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\n") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case error:
		return fmt.Sprintf("%q", val.Error())
	case byte:
		if val >= 0x21 && val < 0x7f {
			return string(rune(val))
		}
		return fmt.Sprintf("0x%02x", val)
	default:
		return fmt.Sprint(v)
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyVals ...interface{}) {
	l.log(LevelDebug, msg, keyVals...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyVals ...interface{}) {
	l.log(LevelInfo, msg, keyVals...)
}

// Warn logs at warn level (for recoverable errors).
func (l *Logger) Warn(msg string, keyVals ...interface{}) {
	l.log(LevelWarn, msg, keyVals...)
}

// Error logs at error level (for significant errors).
func (l *Logger) Error(msg string, keyVals ...interface{}) {
	l.log(LevelError, msg, keyVals...)
}

// Package-level functions that use the default logger.

// SetLevel sets the minimum log level for the default logger.
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput sets the output for the default logger.
func SetOutput(output *log.Logger) {
	defaultLogger.SetOutput(output)
}

// SetCategories sets the debug categories for the default logger.
func SetCategories(c Categories) {
	defaultLogger.SetCategories(c)
}

// With returns a new Logger with additional context from the default logger.
func With(key string, value interface{}) *Logger {
	return defaultLogger.With(key, value)
}

// WithFields returns a new Logger with multiple additional context fields.
func WithFields(fields map[string]interface{}) *Logger {
	return defaultLogger.WithFields(fields)
}

// For returns the default logger scoped to cat.
func For(cat Category) *Logger {
	return defaultLogger.For(cat)
}

// Debug logs at debug level using the default logger.
func Debug(msg string, keyVals ...interface{}) {
	defaultLogger.Debug(msg, keyVals...)
}

// Info logs at info level using the default logger.
func Info(msg string, keyVals ...interface{}) {
	defaultLogger.Info(msg, keyVals...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, keyVals ...interface{}) {
	defaultLogger.Warn(msg, keyVals...)
}

// Error logs at error level using the default logger.
func Error(msg string, keyVals ...interface{}) {
	defaultLogger.Error(msg, keyVals...)
}
