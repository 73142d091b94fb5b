package binutils

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger. Every method takes a message and
// optional alternating keys and values.
type Logger struct {
	zLogger *zap.SugaredLogger
}

// A LoggerConfig contains the running environment, which is either
// "development" or "production", an optional file the output is
// copied to, and whether stack traces are printed.
type LoggerConfig struct {
	EnableStacktrace bool   `toml:"enable_stacktrace,omitempty"`
	Environment      string `toml:"env"`
	Path             string `toml:"path,omitempty"`
}

func levelOf(env string) zapcore.Level {
	switch {
	case strings.EqualFold("development", env):
		return zap.DebugLevel
	case strings.EqualFold("production", env):
		return zap.InfoLevel
	}
	panic("Environment must be either development or production")
}

// NewLogger builds a console Logger writing to stderr and conf.Path:
// debug and above in development, info and above in production.
func NewLogger(conf *LoggerConfig) *Logger {
	outputs := []string{"stderr"}
	if conf.Path != "" {
		outputs = append(outputs, conf.Path)
	}
	zConfig := &zap.Config{
		Level:             zap.NewAtomicLevelAt(levelOf(conf.Environment)),
		Encoding:          "console",
		DisableStacktrace: !conf.EnableStacktrace,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "path",
			MessageKey:     "msg",
			StacktraceKey:  "stack",
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeName:     zapcore.FullNameEncoder,
		},
		OutputPaths: outputs,
	}
	logger, err := zConfig.Build()
	if err != nil {
		panic(err)
	}
	return &Logger{logger.Sugar()}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// Named returns a child logger whose entries carry name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.zLogger.Named(name)}
}

// With returns a child logger that adds keysAndValues to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{l.zLogger.With(keysAndValues...)}
}

// Debug logs a message that is most useful to debug.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.zLogger.Debugw(msg, keysAndValues...)
}

// Info logs the progress of the service.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.zLogger.Infow(msg, keysAndValues...)
}

// Warn logs a potentially harmful situation, such as a witness
// refusing to vote.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.zLogger.Warnw(msg, keysAndValues...)
}

// Error logs a failed operation that does not stop the service.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.zLogger.Errorw(msg, keysAndValues...)
}

// Panic logs a message and then panics.
func (l *Logger) Panic(msg string, keysAndValues ...interface{}) {
	l.zLogger.Panicw(msg, keysAndValues...)
}

// Fatal logs a message and then calls os.Exit(1).
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.zLogger.Fatalw(msg, keysAndValues...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zLogger.Sync()
}
