package logger

import (
	"io"
	"log/syslog"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/argon1d/internal/errors"
	"github.com/rs/zerolog"
)

const syslogTag = "argon1d"

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger. Services log to syslog, interactive
// invocations to stderr.
func Init(level LogLevel, isService bool) {
	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	if isService {
		if w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, syslogTag); err == nil {
			output = zerolog.SyslogLevelWriter(w)
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	SetLogLevel(level)
}

// InitWithWriter initializes the logger with an explicit sink.
func InitWithWriter(level LogLevel, w io.Writer) {
	log = zerolog.New(w).With().Timestamp().Logger()
	SetLogLevel(level)
}

// ParseLevel maps a configured level name to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch name {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warning", "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, name)
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an application error together with its code
func ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

type globalLogger struct{}

// Global returns a Logger backed by the package-level logger.
func Global() Logger {
	return globalLogger{}
}

func (globalLogger) Debug() *LogEvent                         { return Debug() }
func (globalLogger) Info() *LogEvent                          { return Info() }
func (globalLogger) Warn() *LogEvent                          { return Warn() }
func (globalLogger) Error() *LogEvent                         { return Error() }
func (globalLogger) ErrorWithCode(err errors.Error) *LogEvent { return ErrorWithCode(err) }
