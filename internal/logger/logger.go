package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// generation changes whenever the global logger is replaced, so component
// loggers know to rebuild their cached child.
var generation atomic.Uint64

var nopLogger = zerolog.Nop()

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

// Init initializes the logger based on the given level name
func Init(level string, isService bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	InitWriter(os.Stdout, isService)
	SetLogLevel(lvl)

	return nil
}

// InitWriter replaces the global output, mostly for tests and pipes.
func InitWriter(out io.Writer, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.NoColor = true
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	generation.Add(1)
}

// ParseLevel maps a configured level name onto a LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
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
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
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

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

func withCode(ev *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{ev.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

type cachedLogger struct {
	gen uint64
	l   zerolog.Logger
}

// component is a Logger bound to a named part of the application.
// It resolves the global logger lazily so Init may run after construction,
// and reuses the child logger until the global one is replaced.
type component struct {
	name  string
	nop   bool
	cache atomic.Pointer[cachedLogger]
}

// With returns a Logger that tags every event with the component name.
func With(name string) Logger {
	return &component{name: name}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &component{nop: true}
}

func (c *component) base() *zerolog.Logger {
	if c.nop {
		return &nopLogger
	}

	gen := generation.Load()
	if cached := c.cache.Load(); cached != nil && cached.gen == gen {
		return &cached.l
	}

	cached := &cachedLogger{
		gen: gen,
		l:   log.With().Str("component", c.name).Logger(),
	}
	c.cache.Store(cached)
	return &cached.l
}

func (c *component) Debug() *LogEvent {
	l := c.base()
	return &LogEvent{l.Debug()}
}

func (c *component) Info() *LogEvent {
	l := c.base()
	return &LogEvent{l.Info()}
}

func (c *component) Warn() *LogEvent {
	l := c.base()
	return &LogEvent{l.Warn()}
}

func (c *component) Error() *LogEvent {
	l := c.base()
	return &LogEvent{l.Error()}
}

func (c *component) ErrorWithCode(err errors.Error) *LogEvent {
	l := c.base()
	return withCode(l.Error(), err)
}

func (c *component) With(name string) Logger {
	if c.nop {
		return c
	}
	return &component{name: c.name + "." + name}
}
