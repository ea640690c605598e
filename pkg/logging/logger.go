package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	White   = "\033[37m"
	Gray    = "\033[90m"

	BrightRed     = "\033[91m"
	BrightGreen   = "\033[92m"
	BrightYellow  = "\033[93m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"
	BrightWhite   = "\033[97m"
)

// ColoredLogger wraps zap.Logger with component-tagged output
type ColoredLogger struct {
	*zap.Logger
	enableColors bool
}

// Component represents different parts of the name service for color coding
type Component string

const (
	ComponentNameService Component = "NS"
	ComponentWire        Component = "WIRE"
	ComponentMDNS        Component = "MDNS"
	ComponentInterface   Component = "IFACE"
	ComponentEngine      Component = "ENGINE"
	ComponentMetrics     Component = "METRICS"
	ComponentCLI         Component = "CLI"
	ComponentGeneral     Component = "GENERAL"
)

func getComponentColor(component Component) string {
	switch component {
	case ComponentNameService:
		return BrightBlue
	case ComponentWire:
		return BrightMagenta
	case ComponentMDNS:
		return Magenta
	case ComponentInterface:
		return BrightCyan
	case ComponentEngine:
		return BrightGreen
	case ComponentMetrics:
		return BrightYellow
	case ComponentCLI:
		return Blue
	case ComponentGeneral:
		return Yellow
	default:
		return White
	}
}

func getLevelColor(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return Gray
	case zapcore.InfoLevel:
		return BrightWhite
	case zapcore.WarnLevel:
		return BrightYellow
	case zapcore.ErrorLevel:
		return BrightRed
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return Red
	default:
		return White
	}
}

// Options selects the sink, format and verbosity of a logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means debug.
	Level string
	// Format is "console" (default) or "json".
	Format string
	// Colors enables ANSI colors in console output.
	Colors bool
	// File, when set, appends to that path instead of stdout.
	File string
	// Development turns DPanic into a real panic.
	Development bool
}

// ParseLevel maps a config level string onto a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.DebugLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// coloredConsoleEncoder creates a compact console encoder
func coloredConsoleEncoder(enableColors bool) zapcore.Encoder {
	config := zap.NewDevelopmentEncoderConfig()

	// HH:MM:SS.mmm; datagram bursts are 100ms apart so milliseconds matter
	config.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		timeStr := t.Format("15:04:05.000")
		if enableColors {
			enc.AppendString(Dim + timeStr + Reset)
		} else {
			enc.AppendString(timeStr)
		}
	}

	config.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		levelStr := strings.ToUpper(level.String()[:1])
		if enableColors {
			enc.AppendString(getLevelColor(level) + Bold + levelStr + Reset)
		} else {
			enc.AppendString(levelStr)
		}
	}

	config.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		file := caller.File
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
		file = strings.TrimSuffix(file, ".go")
		if enableColors {
			enc.AppendString(Dim + file + Reset)
		} else {
			enc.AppendString(file)
		}
	}

	return zapcore.NewConsoleEncoder(config)
}

// New builds a logger from options.
func New(opts Options) (*ColoredLogger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var sink io.Writer = os.Stdout
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		sink = file
	}

	var encoder zapcore.Encoder
	colors := opts.Colors
	switch opts.Format {
	case "", "console":
		encoder = coloredConsoleEncoder(colors)
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		colors = false
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(sink), level)
	zopts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if opts.Development {
		zopts = append(zopts, zap.Development())
	}

	return &ColoredLogger{
		Logger:       zap.New(core, zopts...),
		enableColors: colors,
	}, nil
}

// NewColoredLogger creates a debug-level console logger on stdout
func NewColoredLogger(enableColors bool) (*ColoredLogger, error) {
	return New(Options{Colors: enableColors})
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger() (*ColoredLogger, error) {
	return NewColoredLogger(true)
}

// Wrap adapts an existing zap logger, e.g. one from zaptest.
func Wrap(l *zap.Logger) *ColoredLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ColoredLogger{Logger: l}
}

// For returns a child logger that tags every entry with the component name.
// Hot paths use it instead of the Component* methods to avoid reformatting
// the message on every call.
func (l *ColoredLogger) For(component Component) *zap.Logger {
	return l.Logger.WithOptions(zap.AddCallerSkip(-1)).With(zap.String("component", string(component)))
}

func (l *ColoredLogger) prefix(component Component, msg string) string {
	if l.enableColors {
		return fmt.Sprintf("%s[%s]%s %s", getComponentColor(component), component, Reset, msg)
	}
	return fmt.Sprintf("[%s] %s", component, msg)
}

// Component-specific logging methods
func (l *ColoredLogger) ComponentInfo(component Component, msg string, fields ...zap.Field) {
	l.Info(l.prefix(component, msg), fields...)
}

func (l *ColoredLogger) ComponentWarn(component Component, msg string, fields ...zap.Field) {
	l.Warn(l.prefix(component, msg), fields...)
}

func (l *ColoredLogger) ComponentError(component Component, msg string, fields ...zap.Field) {
	l.Error(l.prefix(component, msg), fields...)
}

func (l *ColoredLogger) ComponentDebug(component Component, msg string, fields ...zap.Field) {
	l.Debug(l.prefix(component, msg), fields...)
}

// StandardLogger adapts a ColoredLogger to the Println-style interfaces
// expected by promhttp and net/http.
type StandardLogger struct {
	logger    *ColoredLogger
	component Component
}

// NewStandardLogger creates a standard library compatible logger
func NewStandardLogger(logger *ColoredLogger, component Component) *StandardLogger {
	return &StandardLogger{logger: logger, component: component}
}

// Printf implements the standard library log interface
func (s *StandardLogger) Printf(format string, v ...interface{}) {
	s.logger.ComponentInfo(s.component, strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

// Println logs at error level; promhttp only calls it on failures.
func (s *StandardLogger) Println(v ...interface{}) {
	s.logger.ComponentError(s.component, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}
