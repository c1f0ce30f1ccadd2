package log

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	Level  = zapcore.Level
	Field  = zap.Field
	Option = zap.Option
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

//nolint:gochecknoglobals // by design
var (
	WithCaller    = zap.WithCaller
	AddCallerSkip = zap.AddCallerSkip
	AddStacktrace = zap.AddStacktrace

	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int64    = zap.Int64
	Uint     = zap.Uint
	Uint32   = zap.Uint32
	Float64  = zap.Float64
	Bool     = zap.Bool
	Duration = zap.Duration
	Time     = zap.Time
	Any      = zap.Any
)

// ErrorField is the field used for errors. zap.Error would collide with
// the Error log method on this package.
func ErrorField(err error) Field {
	return zap.Error(err)
}

type Logger struct {
	l     *zap.Logger
	level zap.AtomicLevel
}

// New creates a logger with JSON output
func New(writer io.Writer, level Level, opts ...Option) *Logger {
	return newWithEncoder(writer, level, zapcore.NewJSONEncoder(productionEncoderConfig()), opts...)
}

// DevLogger creates a logger with human readable console output
func DevLogger(writer io.Writer, level Level, opts ...Option) *Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return newWithEncoder(writer, level, zapcore.NewConsoleEncoder(encCfg), opts...)
}

// FromZap wraps an existing zap logger (mainly used by tests with zaptest/observer)
func FromZap(z *zap.Logger) *Logger {
	return &Logger{l: z, level: zap.NewAtomicLevelAt(DebugLevel)}
}

//nolint:whitespace // can't make both editor and linter happy
func newWithEncoder(
	writer io.Writer,
	level Level,
	enc zapcore.Encoder,
	opts ...Option,
) *Logger {
	if writer == nil {
		panic("the writer is nil")
	}
	atomicLevel := zap.NewAtomicLevelAt(level)
	core := zapcore.NewCore(enc, zapcore.AddSync(writer), atomicLevel)
	return &Logger{l: zap.New(core, opts...), level: atomicLevel}
}

func productionEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339Nano))
	}
	return cfg
}

func (l *Logger) Debug(msg string, fields ...Field) { l.l.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.l.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.l.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.l.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.l.Fatal(msg, fields...) }

// Named returns a child logger. Names are joined with "." which is also
// the separator used by the filter rules in the log config file.
func (l *Logger) Named(name string) *Logger {
	return &Logger{l: l.l.Named(name), level: l.level}
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{l: l.l.With(fields...), level: l.level}
}

func (l *Logger) Level() Level        { return l.level.Level() }
func (l *Logger) SetLevel(level Level) { l.level.SetLevel(level) }
func (l *Logger) Sync() error         { return l.l.Sync() }

// Zap exposes the underlying logger for libraries that need one.
func (l *Logger) Zap() *zap.Logger { return l.l }

//nolint:gochecknoglobals // by design
var std = New(os.Stderr, InfoLevel, WithCaller(true), AddCallerSkip(1))

func Default() *Logger {
	return std
}

// ResetDefault replaces the logger used by the package level functions.
// not safe for concurrent use
func ResetDefault(l *Logger) {
	std = l
}

func ParseLevel(text string) (Level, error) {
	return zapcore.ParseLevel(text)
}

func Debug(msg string, fields ...Field) { std.Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { std.Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { std.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { std.Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { std.Fatal(msg, fields...) }

func Sync() error {
	return std.Sync()
}
