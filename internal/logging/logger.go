// Package logging wraps log/slog with a bounded in-memory ring of recent
// entries, readable through Logger.GetLogs without tailing stdout. No
// control-plane command exposes the ring.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/cloudtether/vpnd/utilities"
)

const maxLogs = 500

// LogEntry is one ring-buffered log record.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Logger is a *slog.Logger plus a bounded history and an optional hook.
type Logger struct {
	*slog.Logger
	mu    sync.Mutex
	logs  []LogEntry
	OnLog func(level, msg string)
}

// MARK: NewLogger

// Creates a JSON-handler logger at the given level ("debug", "info", "warn", "error").
func NewLogger(level string) *Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})

	return &Logger{
		Logger: slog.New(handler),
		logs:   make([]LogEntry, 0, maxLogs),
	}
}

// MARK: addToMemory

func (l *Logger) addToMemory(level, msg string, context map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Timestamp: utilities.CurrentTimestamp(),
		Level:     strings.ToUpper(level),
		Message:   msg,
		Context:   context,
	}

	if len(l.logs) >= maxLogs {
		l.logs = l.logs[1:]
	}
	l.logs = append(l.logs, entry)

	if l.OnLog != nil {
		l.OnLog(level, msg)
	}
}

func convertArgsToContext(args []any) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}

	context := make(map[string]interface{})
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if key, ok := args[i].(string); ok {
				context[key] = args[i+1]
			}
		}
	}

	if len(context) == 0 {
		return nil
	}
	return context
}

// MARK: GetLogs

// Returns recent log entries, optionally filtered by level.
func (l *Logger) GetLogs(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level == "" {
		return append([]LogEntry(nil), l.logs...)
	}

	filtered := make([]LogEntry, 0)
	for _, entry := range l.logs {
		if strings.EqualFold(entry.Level, level) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func (l *Logger) Debug(msg string, args ...any) {
	l.addToMemory("DEBUG", msg, convertArgsToContext(args))
	l.Logger.Debug(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.addToMemory("INFO", msg, convertArgsToContext(args))
	l.Logger.Info(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.addToMemory("WARN", msg, convertArgsToContext(args))
	l.Logger.Warn(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.addToMemory("ERROR", msg, convertArgsToContext(args))
	l.Logger.Error(msg, args...)
}
