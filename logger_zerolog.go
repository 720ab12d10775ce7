package mqtt311

import (
	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	logger zerolog.Logger
	level  LogLevel
}

// NewZerologLogger wraps logger. The starting level is taken from the logger.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{
		logger: logger,
		level:  levelFromZerolog(logger.GetLevel()),
	}
}

func levelFromZerolog(l zerolog.Level) LogLevel {
	switch {
	case l <= zerolog.DebugLevel:
		return LogLevelDebug
	case l == zerolog.InfoLevel:
		return LogLevelInfo
	case l == zerolog.WarnLevel:
		return LogLevelWarn
	case l == zerolog.ErrorLevel:
		return LogLevelError
	default:
		return LogLevelNone
	}
}

func levelToZerolog(l LogLevel) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

func (z *ZerologLogger) write(e *zerolog.Event, msg string, fields LogFields) {
	if e == nil {
		return
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// Debug logs a debug message.
func (z *ZerologLogger) Debug(msg string, fields LogFields) {
	if z.level <= LogLevelDebug {
		z.write(z.logger.Debug(), msg, fields)
	}
}

// Info logs an info message.
func (z *ZerologLogger) Info(msg string, fields LogFields) {
	if z.level <= LogLevelInfo {
		z.write(z.logger.Info(), msg, fields)
	}
}

// Warn logs a warning message.
func (z *ZerologLogger) Warn(msg string, fields LogFields) {
	if z.level <= LogLevelWarn {
		z.write(z.logger.Warn(), msg, fields)
	}
}

// Error logs an error message.
func (z *ZerologLogger) Error(msg string, fields LogFields) {
	if z.level <= LogLevelError {
		z.write(z.logger.Error(), msg, fields)
	}
}

// WithFields returns a new logger with the given fields added to its context.
func (z *ZerologLogger) WithFields(fields LogFields) Logger {
	return &ZerologLogger{
		logger: z.logger.With().Fields(map[string]any(fields)).Logger(),
		level:  z.level,
	}
}

// Level returns the current log level.
func (z *ZerologLogger) Level() LogLevel {
	return z.level
}

// SetLevel sets the log level on both the adapter and the wrapped logger.
func (z *ZerologLogger) SetLevel(level LogLevel) {
	z.level = level
	z.logger = z.logger.Level(levelToZerolog(level))
}
