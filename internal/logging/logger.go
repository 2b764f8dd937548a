// Package logging provides structured logging for the podbulk CLI.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/bhtools/podbulk/internal/events"
)

// Logger wraps zerolog with an optional event bus mirror.
type Logger struct {
	zlog      zerolog.Logger
	eventBus  *events.EventBus
	output    io.Writer
	component string
}

// NewLogger creates a console logger on stderr. stdout is reserved for
// command output so results can be piped. When eventBus is non-nil, every
// warn and error entry is also published as a LogEvent.
func NewLogger(eventBus *events.EventBus) *Logger {
	return NewLoggerWithWriter(os.Stderr, eventBus)
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(w io.Writer, eventBus *events.EventBus) *Logger {
	l := &Logger{eventBus: eventBus}
	l.build(w)
	return l
}

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: io.Discard}
}

func (l *Logger) build(w io.Writer) {
	l.output = w
	zl := zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}).With().Timestamp().Logger()
	if l.component != "" {
		zl = zl.With().Str("component", l.component).Logger()
	}
	if l.eventBus != nil {
		zl = zl.Hook(busHook{bus: l.eventBus, component: l.component})
	}
	l.zlog = zl
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	child := &Logger{eventBus: l.eventBus, component: name}
	if l.output == io.Discard {
		child.zlog = zerolog.Nop()
		child.output = io.Discard
		return child
	}
	child.build(l.output)
	return child
}

func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// SetOutput redirects the logger, keeping its component and bus hook.
func (l *Logger) SetOutput(w io.Writer) {
	if l.output == io.Discard {
		return
	}
	l.build(w)
}

func (l *Logger) Output() io.Writer {
	return l.output
}

func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// LevelFor maps the --verbose and --debug flags to a zerolog level.
func LevelFor(verbose, debug bool) zerolog.Level {
	switch {
	case debug:
		return zerolog.DebugLevel
	case verbose:
		return zerolog.InfoLevel
	default:
		return zerolog.WarnLevel
	}
}

type busHook struct {
	bus       *events.EventBus
	component string
}

func (h busHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	var lvl events.LogLevel
	switch level {
	case zerolog.WarnLevel:
		lvl = events.WarnLevel
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		lvl = events.ErrorLevel
	default:
		return
	}
	h.bus.PublishLog(lvl, msg, h.component, nil)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}
