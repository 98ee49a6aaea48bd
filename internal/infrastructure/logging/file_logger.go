package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger реализация логгера поверх zap.
// Нулевой указатель допустим и ничего не пишет.
type FileLogger struct {
	sugar   *zap.SugaredLogger
	success *zap.SugaredLogger
	sink    *lumberjack.Logger
}

const (
	defaultMaxSizeMB = 10
	maxBackups       = 3
)

// NewFileLogger создает новый файловый логгер с ротацией по размеру
func NewFileLogger(filename, logLevel string, maxSizeMB int, logToFile bool) (*FileLogger, error) {
	if !logToFile {
		return nil, nil
	}

	sink := newRollingSink(filename, maxSizeMB)
	// Файл открывается сразу, чтобы ошибка доступа была видна при старте
	if _, err := sink.Write(nil); err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(sink), ParseLevel(logLevel))
	l := NewLogger(zap.New(core))
	l.sink = sink
	return l, nil
}

// NewLogger оборачивает готовый zap логгер
func NewLogger(z *zap.Logger) *FileLogger {
	sugar := z.Sugar()
	return &FileLogger{
		sugar:   sugar,
		success: sugar.With("result", "success"),
	}
}

// NewConsoleLogger создает логгер в stderr для работы без TUI
func NewConsoleLogger(logLevel string) (*FileLogger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(ParseLevel(logLevel))
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.DisableCaller = true

	z, err := config.Build()
	if err != nil {
		return nil, err
	}
	return NewLogger(z), nil
}

// NewNopLogger создает логгер, который ничего не пишет
func NewNopLogger() *FileLogger {
	return NewLogger(zap.NewNop())
}

// ParseLevel переводит уровень из конфигурации в уровень zap
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warning", "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debug логирует отладочное сообщение
func (l *FileLogger) Debug(format string, args ...interface{}) {
	if l != nil {
		l.sugar.Debugf(format, args...)
	}
}

// Info логирует информационное сообщение
func (l *FileLogger) Info(format string, args ...interface{}) {
	if l != nil {
		l.sugar.Infof(format, args...)
	}
}

// Warning логирует предупреждение
func (l *FileLogger) Warning(format string, args ...interface{}) {
	if l != nil {
		l.sugar.Warnf(format, args...)
	}
}

// Error логирует ошибку
func (l *FileLogger) Error(format string, args ...interface{}) {
	if l != nil {
		l.sugar.Errorf(format, args...)
	}
}

// Success логирует успешное выполнение
func (l *FileLogger) Success(format string, args ...interface{}) {
	if l != nil {
		l.success.Infof(format, args...)
	}
}

// Close сбрасывает буферы и закрывает файл
func (l *FileLogger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.sugar.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// newRollingSink файл журнала с ротацией по размеру в мегабайтах
func newRollingSink(path string, maxSizeMB int) *lumberjack.Logger {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}
}
