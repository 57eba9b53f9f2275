package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Service   string                 `json:"service"`
	Component string                 `json:"component,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Room      string                 `json:"room,omitempty"`
	Channel   string                 `json:"channel,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Duration  string                 `json:"duration,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// Logger provides structured logging functionality
type Logger struct {
	level     LogLevel
	service   string
	component string
	output    *log.Logger
	context   map[string]interface{}
}

// NewLogger creates a new structured logger
func NewLogger(service, component string) *Logger {
	return &Logger{
		level:     getLogLevelFromEnv(),
		service:   service,
		component: component,
		output:    log.New(os.Stdout, "", 0),
		context:   make(map[string]interface{}),
	}
}

// WithContext returns a new logger with additional context fields
func (l *Logger) WithContext(fields map[string]interface{}) *Logger {
	newLogger := &Logger{
		level:     l.level,
		service:   l.service,
		component: l.component,
		output:    l.output,
		context:   make(map[string]interface{}),
	}

	for k, v := range l.context {
		newLogger.context[k] = v
	}
	for k, v := range fields {
		newLogger.context[k] = v
	}

	return newLogger
}

// WithTraceID returns a new logger with trace ID context
func (l *Logger) WithTraceID(traceID string) *Logger {
	return l.WithContext(map[string]interface{}{
		"trace_id": traceID,
	})
}

// WithRoom returns a new logger with room key context
func (l *Logger) WithRoom(room string) *Logger {
	return l.WithContext(map[string]interface{}{
		"room": room,
	})
}

// WithChannel returns a new logger with socket channel context
func (l *Logger) WithChannel(channel string) *Logger {
	return l.WithContext(map[string]interface{}{
		"channel": channel,
	})
}

// WithError returns a new logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithContext(map[string]interface{}{
		"error": err.Error(),
	})
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, fields...)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, fields...)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, fields...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FATAL, message, fields...)
	os.Exit(1)
}

// ConnectionEvent logs connection lifecycle events
func (l *Logger) ConnectionEvent(event, channel string, attempt int) {
	fields := map[string]interface{}{
		"operation": "connection",
		"event":     event,
	}
	if attempt > 0 {
		fields["attempt"] = attempt
	}
	l.WithChannel(channel).Info(fmt.Sprintf("Connection event: %s", event), fields)
}

// RoomEvent logs room subscription events
func (l *Logger) RoomEvent(event, room string) {
	l.WithRoom(room).Debug(fmt.Sprintf("Room event: %s", event), map[string]interface{}{
		"operation": "subscription",
		"event":     event,
	})
}

// DecodeFailed logs a binary payload decode failure
func (l *Logger) DecodeFailed(size int, err error) {
	l.WithError(err).Error("Event payload decode failed", map[string]interface{}{
		"operation":    "decode",
		"payload_size": size,
	})
}

// AggregationCalculated logs aggregation timing
func (l *Logger) AggregationCalculated(events int, duration time.Duration) {
	l.Debug("Aggregation calculated", map[string]interface{}{
		"operation": "aggregation",
		"events":    events,
		"duration":  duration.String(),
	})
}

// log is the internal logging method
func (l *Logger) log(level LogLevel, message string, fields ...map[string]interface{}) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   message,
		Service:   l.service,
		Component: l.component,
		Fields:    make(map[string]interface{}),
	}

	// Add caller information for ERROR and FATAL levels
	if level >= ERROR {
		if pc, file, line, ok := runtime.Caller(2); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				entry.Caller = fmt.Sprintf("%s:%d %s", file, line, fn.Name())
			}
		}
	}

	for k, v := range l.context {
		entry.assign(k, v)
	}
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			entry.assign(k, v)
		}
	}

	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	if jsonBytes, err := json.Marshal(entry); err == nil {
		l.output.Println(string(jsonBytes))
	} else {
		// Fallback to simple logging if JSON marshaling fails
		l.output.Printf("[%s] %s %s: %s\n", entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Service, message)
	}
}

// assign routes a context field to its dedicated entry slot or the
// free-form field map.
func (e *LogEntry) assign(k string, v interface{}) {
	s, isString := v.(string)
	switch {
	case k == "trace_id" && isString:
		e.TraceID = s
	case k == "room" && isString:
		e.Room = s
	case k == "channel" && isString:
		e.Channel = s
	case k == "operation" && isString:
		e.Operation = s
	case k == "duration" && isString:
		e.Duration = s
	case k == "error" && isString:
		e.Error = s
	default:
		e.Fields[k] = v
	}
}

// getLogLevelFromEnv gets log level from environment variable
func getLogLevelFromEnv() LogLevel {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
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
