package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brunov7/formerr-hooks/internal/tracing"
)

// LogLevel represents the severity of the log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// LogEntry is one structured log line. Domain identifiers get first-class
// fields so log pipelines can index them without digging into the fields map.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      LogLevel       `json:"level"`
	Message    string         `json:"msg"`
	Service    string         `json:"service,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	FormID     string         `json:"form_id,omitempty"`
	WebhookID  string         `json:"webhook_id,omitempty"`
	DeliveryID string         `json:"delivery_id,omitempty"`
	EventType  string         `json:"event_type,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`

	out io.Writer
}

// Logger provides structured JSON logging with trace correlation
type Logger struct {
	service string
	out     io.Writer
}

// New creates a logger for the given service, writing JSON lines to stdout
func New(service string) *Logger {
	return &Logger{service: service, out: os.Stdout}
}

// NewWithWriter is for tests that need to capture output
func NewWithWriter(service string, w io.Writer) *Logger {
	return &Logger{service: service, out: w}
}

// WithContext creates a log entry carrying the trace id from ctx, if any
func (l *Logger) WithContext(ctx context.Context) *LogEntry {
	e := l.Plain()
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		e.TraceID = traceID
	}
	return e
}

// Plain creates a basic log entry without context
func (l *Logger) Plain() *LogEntry {
	return &LogEntry{
		Time:    time.Now().UTC(),
		Service: l.service,
		out:     l.out,
	}
}

// WithForm sets the form ID for the log entry
func (e *LogEntry) WithForm(formID string) *LogEntry {
	e.FormID = formID
	return e
}

// WithWebhook sets the webhook subscription ID for the log entry
func (e *LogEntry) WithWebhook(webhookID string) *LogEntry {
	e.WebhookID = webhookID
	return e
}

// WithDelivery sets the delivery ID for the log entry
func (e *LogEntry) WithDelivery(deliveryID string) *LogEntry {
	e.DeliveryID = deliveryID
	return e
}

// WithEventType sets the event type tag for the log entry
func (e *LogEntry) WithEventType(eventType string) *LogEntry {
	e.EventType = eventType
	return e
}

// WithField adds a single field to the log entry
func (e *LogEntry) WithField(key string, value any) *LogEntry {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithFields adds multiple fields to the log entry
func (e *LogEntry) WithFields(fields map[string]any) *LogEntry {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// WithError adds an error field to the log entry; nil errors are ignored
func (e *LogEntry) WithError(err error) *LogEntry {
	if err != nil {
		e.WithField("error", err.Error())
	}
	return e
}

// Debug logs at debug level
func (e *LogEntry) Debug(message string) { e.emit(LevelDebug, message) }

// Info logs at info level
func (e *LogEntry) Info(message string) { e.emit(LevelInfo, message) }

// Infof logs at info level with formatting
func (e *LogEntry) Infof(format string, args ...any) {
	e.emit(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs at warn level
func (e *LogEntry) Warn(message string) { e.emit(LevelWarn, message) }

// Error logs at error level
func (e *LogEntry) Error(message string) { e.emit(LevelError, message) }

// Errorf logs at error level with formatting
func (e *LogEntry) Errorf(format string, args ...any) {
	e.emit(LevelError, fmt.Sprintf(format, args...))
}

// Fatal logs at fatal level and exits
func (e *LogEntry) Fatal(message string) {
	e.emit(LevelFatal, message)
	os.Exit(1)
}

func (e *LogEntry) emit(level LogLevel, message string) {
	e.Level = level
	e.Message = message
	if len(e.Fields) == 0 {
		e.Fields = nil
	}

	w := e.out
	if w == nil {
		w = os.Stdout
	}
	data, err := json.Marshal(e)
	if err != nil {
		// Fall back to plain text if marshaling fails
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		fmt.Fprintf(w, "%s [%s] %s\n", e.Time.Format(time.RFC3339), e.Level, e.Message)
		return
	}
	fmt.Fprintln(w, string(data))
}
