package observability

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger — тонкая обёртка над zap.SugaredLogger с парами ключ/значение.
type Logger struct {
	sugar  *zap.SugaredLogger
	closer io.Closer
}

type Options struct {
	LogPath  string
	LogLevel string
	Console  bool
}

// NewLogger собирает логгер: консоль (stdout) и, если задан путь, JSON-файл с ротацией.
func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.LogLevel != "" {
		lvl, err := zapcore.ParseLevel(opts.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
		}
		level = lvl
	}

	var cores []zapcore.Core
	var closer io.Closer

	if opts.Console || opts.LogPath == "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig()),
			zapcore.Lock(zapcore.AddSync(os.Stdout)),
			level,
		))
	}

	if opts.LogPath != "" {
		writer := &lumberjack.Logger{
			Filename:  opts.LogPath,
			MaxSize:   200,
			LocalTime: true,
			Compress:  true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(writer),
			level,
		))
		// lumberjack не умеет Sync, поэтому закрываем его явно
		closer = writer
	}

	stackLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.DPanicLevel
	})
	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(stackLevel))

	return &Logger{sugar: base.Sugar(), closer: closer}, nil
}

// NewNop возвращает логгер, который ничего не пишет.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name), closer: l.closer}
}

func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.sugar.Debugw(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...interface{}) {
	l.sugar.Infow(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.sugar.Warnw(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...interface{}) {
	l.sugar.Errorw(msg, fields...)
}

func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Close сбрасывает буферы и закрывает файл лога.
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
