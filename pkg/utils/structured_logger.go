package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogFormat defines the output format for logs
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// LogEntry represents a complete log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	Stack     string                 `json:"stack,omitempty"`
}

// sink is shared by a logger and every child derived from it.
type sink struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
}

func (s *sink) write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(p)
}

// StructuredLogger provides structured logging with levels and fields
type StructuredLogger struct {
	mu              sync.RWMutex
	level           LogLevel
	sink            *sink
	format          LogFormat
	contextFields   map[string]interface{}
	includeCaller   bool
	includeStack    bool // Only for ERROR and FATAL
	componentLevels map[string]LogLevel
}

// StructuredLoggerConfig holds configuration for the logger
type StructuredLoggerConfig struct {
	Level         LogLevel
	Output        io.Writer
	Format        LogFormat
	IncludeCaller bool
	IncludeStack  bool
	// LogFile, when set, takes precedence over Output. The file is opened in
	// append mode and closed by Close.
	LogFile string
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() *StructuredLoggerConfig {
	return &StructuredLoggerConfig{
		Level:         INFO,
		Output:        os.Stderr,
		Format:        FormatText,
		IncludeCaller: false,
		IncludeStack:  false,
	}
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(config *StructuredLoggerConfig) (*StructuredLogger, error) {
	if config == nil {
		config = DefaultStructuredLoggerConfig()
	}

	s := &sink{out: config.Output}
	if s.out == nil {
		s.out = os.Stderr
	}

	if config.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.LogFile), 0750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		s.out = f
		s.closer = f
	}

	return &StructuredLogger{
		level:           config.Level,
		sink:            s,
		format:          config.Format,
		contextFields:   make(map[string]interface{}),
		includeCaller:   config.IncludeCaller,
		includeStack:    config.IncludeStack,
		componentLevels: make(map[string]LogLevel),
	}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *StructuredLogger {
	return &StructuredLogger{
		level:           FATAL + 1,
		sink:            &sink{out: io.Discard},
		contextFields:   make(map[string]interface{}),
		componentLevels: make(map[string]LogLevel),
	}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *StructuredLogger) *StructuredLogger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}

// WithField returns a new logger with an additional context field
func (sl *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	return sl.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with multiple context fields
func (sl *StructuredLogger) WithFields(fields map[string]interface{}) *StructuredLogger {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	newFields := make(map[string]interface{}, len(sl.contextFields)+len(fields))
	for k, v := range sl.contextFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &StructuredLogger{
		level:           sl.level,
		sink:            sl.sink,
		format:          sl.format,
		contextFields:   newFields,
		includeCaller:   sl.includeCaller,
		includeStack:    sl.includeStack,
		componentLevels: sl.componentLevels,
	}
}

// WithComponent returns a logger with a component field
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return sl.WithField("component", component)
}

// SetComponentLevel sets the log level for a specific component. The
// override is shared with every logger derived from the same root.
func (sl *StructuredLogger) SetComponentLevel(component string, level LogLevel) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.componentLevels[component] = level
}

// SetLevel sets the log level of this logger
func (sl *StructuredLogger) SetLevel(level LogLevel) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.level = level
}

// GetLevel returns the current log level
func (sl *StructuredLogger) GetLevel() LogLevel {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.level
}

// IsEnabled reports whether a message at level would be written.
func (sl *StructuredLogger) IsEnabled(level LogLevel) bool {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if component, ok := sl.contextFields["component"].(string); ok {
		if compLevel, exists := sl.componentLevels[component]; exists {
			return level >= compLevel
		}
	}
	return level >= sl.level
}

func (sl *StructuredLogger) log(level LogLevel, message string, fields map[string]interface{}) {
	if !sl.IsEnabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
		Fields:    make(map[string]interface{}),
	}

	sl.mu.RLock()
	for k, v := range sl.contextFields {
		entry.Fields[k] = v
	}
	sl.mu.RUnlock()

	for k, v := range fields {
		entry.Fields[k] = v
	}

	if sl.includeCaller {
		if _, file, line, ok := runtime.Caller(3); ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	if sl.includeStack && level >= ERROR {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		entry.Stack = string(buf[:n])
	}

	var output string
	if sl.format == FormatJSON {
		jsonBytes, err := json.Marshal(entry)
		if err != nil {
			output = formatText(entry)
		} else {
			output = string(jsonBytes) + "\n"
		}
	} else {
		output = formatText(entry)
	}

	sl.sink.write([]byte(output))
}

// formatText renders an entry as one human-readable line. Fields are sorted
// so output is stable.
func formatText(entry LogEntry) string {
	var sb strings.Builder

	sb.WriteString(entry.Timestamp.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(entry.Level)
	sb.WriteString("] ")

	if entry.Caller != "" {
		sb.WriteString("[")
		sb.WriteString(entry.Caller)
		sb.WriteString("] ")
	}

	sb.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, entry.Fields[k])
		}
		sb.WriteString("}")
	}

	sb.WriteString("\n")

	if entry.Stack != "" {
		sb.WriteString("Stack trace:\n")
		sb.WriteString(entry.Stack)
		sb.WriteString("\n")
	}

	return sb.String()
}

// Trace logs a trace message
func (sl *StructuredLogger) Trace(message string, fields ...map[string]interface{}) {
	sl.logWithFields(TRACE, message, fields...)
}

// Debug logs a debug message
func (sl *StructuredLogger) Debug(message string, fields ...map[string]interface{}) {
	sl.logWithFields(DEBUG, message, fields...)
}

// Info logs an info message
func (sl *StructuredLogger) Info(message string, fields ...map[string]interface{}) {
	sl.logWithFields(INFO, message, fields...)
}

// Warn logs a warning message
func (sl *StructuredLogger) Warn(message string, fields ...map[string]interface{}) {
	sl.logWithFields(WARN, message, fields...)
}

// Error logs an error message
func (sl *StructuredLogger) Error(message string, fields ...map[string]interface{}) {
	sl.logWithFields(ERROR, message, fields...)
}

// Fatal logs a fatal message and exits
func (sl *StructuredLogger) Fatal(message string, fields ...map[string]interface{}) {
	sl.logWithFields(FATAL, message, fields...)
	os.Exit(1)
}

func (sl *StructuredLogger) logWithFields(level LogLevel, message string, fieldMaps ...map[string]interface{}) {
	var fields map[string]interface{}
	if len(fieldMaps) > 0 {
		fields = fieldMaps[0]
	}
	sl.log(level, message, fields)
}

// Debugf logs a formatted debug message
func (sl *StructuredLogger) Debugf(format string, args ...interface{}) {
	sl.logf(DEBUG, format, args...)
}

// Infof logs a formatted info message
func (sl *StructuredLogger) Infof(format string, args ...interface{}) {
	sl.logf(INFO, format, args...)
}

// Warnf logs a formatted warning message
func (sl *StructuredLogger) Warnf(format string, args ...interface{}) {
	sl.logf(WARN, format, args...)
}

// Errorf logs a formatted error message
func (sl *StructuredLogger) Errorf(format string, args ...interface{}) {
	sl.logf(ERROR, format, args...)
}

func (sl *StructuredLogger) logf(level LogLevel, format string, args ...interface{}) {
	if !sl.IsEnabled(level) {
		return
	}
	sl.log(level, fmt.Sprintf(format, args...), nil)
}

// Close releases the log file, if the logger owns one.
func (sl *StructuredLogger) Close() error {
	if sl.sink.closer != nil {
		return sl.sink.closer.Close()
	}
	return nil
}
