// Package logging provides structured logging for the memory service.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging surface the rest of the service depends
// on. Components take a component-scoped Logger rather than reaching for
// package-level functions directly, so tests can swap in a NoOpLogger.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})

	WithComponent(component string) Logger
	WithTraceID(traceID string) Logger
}

// LogEntry is one structured log line.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger implements Logger with JSON or plain-text output.
type StructuredLogger struct {
	level     LogLevel
	component string
	traceID   string
	useJSON   bool
}

// LogLevel orders severities so a configured level filters quieter ones.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// NewLogger creates a logger at the given level and output format.
func NewLogger(level LogLevel, useJSON bool) Logger {
	return &StructuredLogger{level: level, useJSON: useJSON}
}

// WithComponent returns a logger tagging every entry with component.
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{level: l.level, component: component, traceID: l.traceID, useJSON: l.useJSON}
}

// WithTraceID returns a logger tagging every entry with traceID, so every
// log line emitted while handling one batch call can be correlated.
func (l *StructuredLogger) WithTraceID(traceID string) Logger {
	return &StructuredLogger{level: l.level, component: l.component, traceID: traceID, useJSON: l.useJSON}
}

func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, fields...)
	}
}

func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, fields...)
	}
}

func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, fields...)
	}
}

func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, fields...)
	}
}

func (l *StructuredLogger) Fatal(msg string, fields ...interface{}) {
	l.logEntry("FATAL", msg, fields...)
	os.Exit(1)
}

func (l *StructuredLogger) logEntry(level, msg string, fields ...interface{}) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown", 0
	} else {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	fieldMap := make(map[string]interface{})
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			fieldMap[fmt.Sprintf("%v", fields[i])] = fields[i+1]
		} else {
			fieldMap[fmt.Sprintf("field_%d", i)] = fields[i]
		}
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: l.component,
		TraceID:   l.traceID,
		File:      file,
		Line:      line,
		Fields:    fieldMap,
	}

	if l.useJSON {
		l.outputJSON(entry)
	} else {
		l.outputText(entry)
	}
}

func (l *StructuredLogger) outputJSON(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func (l *StructuredLogger) outputText(entry LogEntry) {
	parts := []string{entry.Timestamp, fmt.Sprintf("[%s]", entry.Level)}
	if entry.TraceID != "" {
		parts = append(parts, fmt.Sprintf("trace:%s", entry.TraceID))
	}
	if entry.Component != "" {
		parts = append(parts, fmt.Sprintf("component:%s", entry.Component))
	}
	parts = append(parts, entry.Message)
	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if entry.File != "" && entry.Line > 0 {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}
	fmt.Println(strings.Join(parts, " "))
}

// defaultLogger backs the package-level convenience functions; components
// that only need a component-scoped child call WithComponent off of it.
var defaultLogger Logger = NewLogger(INFO, true)

// SetDefaultLogger replaces the package-level default, used by tests to
// install a NoOpLogger and by main to apply the resolved LoggingConfig.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

func Info(msg string, fields ...interface{})  { defaultLogger.Info(msg, fields...) }
func Warn(msg string, fields ...interface{})  { defaultLogger.Warn(msg, fields...) }
func Error(msg string, fields ...interface{}) { defaultLogger.Error(msg, fields...) }
func Debug(msg string, fields ...interface{}) { defaultLogger.Debug(msg, fields...) }
func Fatal(msg string, fields ...interface{}) { defaultLogger.Fatal(msg, fields...) }

// WithComponent returns a child of the default logger tagging entries with
// component. Components call this once at construction time.
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// GenerateTraceID returns a fresh trace ID for correlating the log lines
// of one dispatcher batch call.
func GenerateTraceID() string {
	return uuid.New().String()
}

// ParseLogLevel maps a LOG_LEVEL config string to a LogLevel, defaulting to
// INFO for anything unrecognized.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}
