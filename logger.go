package mqtt311

import (
	"fmt"
	"strings"
)

// LogLevel orders log messages by severity. LogLevelNone silences a logger.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelNone
)

var logLevelNames = [...]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
	LogLevelNone:  "NONE",
}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(logLevelNames) {
		return "UNKNOWN"
	}
	return logLevelNames[l]
}

// ParseLogLevel parses a level name such as "debug" or "WARN".
// "warning" and "off" are accepted as aliases.
func ParseLogLevel(s string) (LogLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "WARNING":
		return LogLevelWarn, nil
	case "OFF", "DISABLED":
		return LogLevelNone, nil
	}
	for l, n := range logLevelNames {
		if n == name {
			return LogLevel(l), nil
		}
	}
	return LogLevelNone, fmt.Errorf("unknown log level %q", s)
}

// LogFields are the structured key-value pairs attached to a log message.
type LogFields map[string]any

// Logger is the logging interface used by the client. Adapters for zap and
// zerolog are provided by NewZapLogger and NewZerologLogger.
//
// Implementations must be safe for concurrent use: the client logs from its
// event loop, its connection goroutines and the handler executor.
type Logger interface {
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, fields LogFields)

	// WithFields returns a logger that adds fields to every message.
	WithFields(fields LogFields) Logger

	Level() LogLevel
	SetLevel(level LogLevel)
}

// NoOpLogger discards everything. It is the client's default logger.
type NoOpLogger struct {
	level LogLevel
}

func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{level: LogLevelNone}
}

func (n *NoOpLogger) Debug(string, LogFields) {}
func (n *NoOpLogger) Info(string, LogFields)  {}
func (n *NoOpLogger) Warn(string, LogFields)  {}
func (n *NoOpLogger) Error(string, LogFields) {}

func (n *NoOpLogger) WithFields(LogFields) Logger { return n }

func (n *NoOpLogger) Level() LogLevel         { return n.level }
func (n *NoOpLogger) SetLevel(level LogLevel) { n.level = level }

// Field names used in the client's log messages.
const (
	LogFieldClientID   = "client_id"
	LogFieldTopic      = "topic"
	LogFieldPacketID   = "packet_id"
	LogFieldPacketType = "packet_type"
	LogFieldQoS        = "qos"
	LogFieldReturnCode = "return_code" // CONNACK or SUBACK
	LogFieldError      = "error"
	LogFieldRemoteAddr = "remote_addr"
	LogFieldDuration   = "duration"
	LogFieldAttempt    = "attempt" // retransmission or reconnect attempt
	LogFieldDelay      = "delay"
)
