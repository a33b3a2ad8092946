package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel. Unknown
// names map to LogLevelInfo.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface for turnmesh.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// ForComponent tags l with a component name when l is a *MeshLogger and
// returns l unchanged otherwise.
func ForComponent(l Logger, component string) Logger {
	if ml, ok := l.(*MeshLogger); ok {
		return ml.WithComponent(component)
	}
	return OrNoOp(l)
}

// ForChat tags l with conversation and session ids when l is a *MeshLogger.
// Other loggers get the ids as plain key/value pairs on every entry.
func ForChat(l Logger, chatID, sessionID string) Logger {
	if ml, ok := l.(*MeshLogger); ok {
		return ml.WithChat(chatID, sessionID)
	}
	return chatLogger{inner: OrNoOp(l), chatID: chatID, sessionID: sessionID}
}

type chatLogger struct {
	inner             Logger
	chatID, sessionID string
}

func (c chatLogger) attrs(args []any) []any {
	out := append([]any{"chat_id", c.chatID}, args...)
	if c.sessionID != "" {
		out = append(out, "session_id", c.sessionID)
	}
	return out
}

func (c chatLogger) Debug(msg string, args ...any) { c.inner.Debug(msg, c.attrs(args)...) }
func (c chatLogger) Info(msg string, args ...any) { c.inner.Info(msg, c.attrs(args)...) }
func (c chatLogger) Warn(msg string, args ...any) { c.inner.Warn(msg, c.attrs(args)...) }
func (c chatLogger) Error(msg string, args ...any) { c.inner.Error(msg, c.attrs(args)...) }

// MeshLogger writes slog records tagged with the component and the
// conversation they concern. With* methods return tagged copies.
type MeshLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	chatID    string
	sessionID string
}

// LoggerConfig configures construction of a MeshLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a MeshLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *MeshLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &MeshLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent sets the logical component (scheduler, drain, ...).
func (l *MeshLogger) WithComponent(c string) *MeshLogger {
	nl := *l
	nl.component = c
	return &nl
}

// WithChat attaches conversation and session identifiers.
func (l *MeshLogger) WithChat(chatID, sessionID string) *MeshLogger {
	nl := *l
	nl.chatID = chatID
	nl.sessionID = sessionID
	return &nl
}

func (l *MeshLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.chatID != "" {
		attrs = append(attrs, slog.String("chat_id", l.chatID))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	return attrs
}

func (l *MeshLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(l.buildAttrs()...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *MeshLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *MeshLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *MeshLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *MeshLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogInvocation records one invocation engine call made for a task group.
func LogInvocation(l Logger, taskType string, anchor int, dur time.Duration, err error) {
	args := []any{"task_type", taskType, "anchor", anchor, "duration", dur, "success", err == nil}
	if err != nil {
		l.Error("Invocation failed", append(args, "error", err.Error())...)
		return
	}
	l.Info("Invocation completed", args...)
}

// LogDrainTick records the outcome of one drain loop pass.
func LogDrainTick(l Logger, reclaimed, drainedChats, drainedMessages, skipped int, dur time.Duration) {
	l.Debug("Drain tick completed",
		"reclaimed_locks", reclaimed,
		"drained_chats", drainedChats,
		"drained_messages", drainedMessages,
		"skipped_chats", skipped,
		"duration", dur,
	)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new MeshLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *MeshLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
