package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelOrder = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Service   string                 `json:"service"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Stack     string                 `json:"stack,omitempty"`
}

// Formatter interface for log formatting
type Formatter interface {
	Format(entry LogEntry) string
}

// JSONFormatter formats logs as JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Format(entry LogEntry) string {
	data, _ := json.Marshal(entry)
	return string(data)
}

// TextFormatter formats logs as human-readable text
type TextFormatter struct{}

func (f *TextFormatter) Format(entry LogEntry) string {
	if entry.RequestID != "" {
		return fmt.Sprintf("%s [%s] %s.%s [%s] %s", entry.Timestamp, entry.Level, entry.Service, entry.Logger, entry.RequestID, entry.Message)
	}
	return fmt.Sprintf("%s [%s] %s.%s %s", entry.Timestamp, entry.Level, entry.Service, entry.Logger, entry.Message)
}

// Logger represents a named structured logger instance
type Logger struct {
	name      string
	level     LogLevel
	service   string
	formatter Formatter
}

// Global configuration
var (
	globalService string   = "tabkeep-gateway"
	globalLevel   LogLevel = INFO
	useJSON       bool     = false
)

// Initialize sets the global logger configuration.
func Initialize(service string, level LogLevel, jsonFormat bool) {
	globalService = service
	globalLevel = level
	useJSON = jsonFormat
}

// InitFromEnv configures logging from SERVICE_NAME, LOG_LEVEL and LOG_FORMAT.
func InitFromEnv() {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "tabkeep-gateway"
	}

	level := INFO
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		level = DEBUG
	case "WARN":
		level = WARN
	case "ERROR":
		level = ERROR
	}

	Initialize(service, level, os.Getenv("LOG_FORMAT") == "json")
}

// GetLogger creates a new logger instance with the given name.
func GetLogger(name string) *Logger {
	var formatter Formatter
	if useJSON {
		formatter = &JSONFormatter{}
	} else {
		formatter = &TextFormatter{}
	}

	return &Logger{
		name:      name,
		level:     globalLevel,
		service:   globalService,
		formatter: formatter,
	}
}

// Context key for request ID
type contextKey string

const RequestIDKey contextKey = "request_id"

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return fmt.Sprintf("%08x", rand.Uint32())
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestIDFromContext extracts request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// log is the internal logging method
func (l *Logger) log(ctx context.Context, level LogLevel, message string, fields map[string]interface{}, err error) {
	if levelOrder[level] < levelOrder[l.level] {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Level:     level,
		Service:   l.service,
		Logger:    l.name,
		Message:   message,
		Fields:    fields,
	}

	if ctx != nil {
		if requestID := GetRequestIDFromContext(ctx); requestID != "" {
			entry.RequestID = requestID
		}
	}

	if err != nil {
		entry.Error = err.Error()
		if level == ERROR {
			entry.Stack = getStackTrace()
		}
	}

	fmt.Println(l.formatter.Format(entry))
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

func (l *Logger) Debug(message string) {
	l.log(nil, DEBUG, message, nil, nil)
}

func (l *Logger) DebugWithFields(message string, fields map[string]interface{}) {
	l.log(nil, DEBUG, message, fields, nil)
}

func (l *Logger) Info(message string) {
	l.log(nil, INFO, message, nil, nil)
}

func (l *Logger) InfoCtx(ctx context.Context, message string) {
	l.log(ctx, INFO, message, nil, nil)
}

func (l *Logger) InfoWithFields(message string, fields map[string]interface{}) {
	l.log(nil, INFO, message, fields, nil)
}

func (l *Logger) InfoWithFieldsCtx(ctx context.Context, message string, fields map[string]interface{}) {
	l.log(ctx, INFO, message, fields, nil)
}

func (l *Logger) Warn(message string) {
	l.log(nil, WARN, message, nil, nil)
}

func (l *Logger) WarnWithFields(message string, fields map[string]interface{}) {
	l.log(nil, WARN, message, fields, nil)
}

func (l *Logger) WarnWithFieldsCtx(ctx context.Context, message string, fields map[string]interface{}) {
	l.log(ctx, WARN, message, fields, nil)
}

func (l *Logger) Error(message string, err error) {
	l.log(nil, ERROR, message, nil, err)
}

func (l *Logger) ErrorCtx(ctx context.Context, message string, err error) {
	l.log(ctx, ERROR, message, nil, err)
}

func (l *Logger) ErrorWithFields(message string, fields map[string]interface{}, err error) {
	l.log(nil, ERROR, message, fields, err)
}

func (l *Logger) ErrorWithFieldsCtx(ctx context.Context, message string, fields map[string]interface{}, err error) {
	l.log(ctx, ERROR, message, fields, err)
}
