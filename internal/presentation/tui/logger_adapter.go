package tui

import (
	"fmt"

	"pdfshrink/internal/domain/repositories"
)

// UILogger дублирует записи базового логгера в журнал событий TUI
type UILogger struct {
	fileLogger repositories.Logger
	tuiManager *Manager
}

// NewUILogger создает новый UI логгер
func NewUILogger(fileLogger repositories.Logger, tuiManager *Manager) *UILogger {
	return &UILogger{
		fileLogger: fileLogger,
		tuiManager: tuiManager,
	}
}

func (l *UILogger) emit(level string, write func(string, ...interface{}), format string, args []interface{}) {
	if l.fileLogger != nil {
		write(format, args...)
	}
	if l.tuiManager != nil {
		l.tuiManager.AddLog(level, fmt.Sprintf(format, args...))
	}
}

// Debug логирует отладочное сообщение
func (l *UILogger) Debug(format string, args ...interface{}) {
	l.emit("DEBUG", l.fileDebug, format, args)
}

// Info логирует информационное сообщение
func (l *UILogger) Info(format string, args ...interface{}) {
	l.emit("INFO", l.fileInfo, format, args)
}

// Warning логирует предупреждение
func (l *UILogger) Warning(format string, args ...interface{}) {
	l.emit("WARNING", l.fileWarning, format, args)
}

// Error логирует ошибку
func (l *UILogger) Error(format string, args ...interface{}) {
	l.emit("ERROR", l.fileError, format, args)
}

// Success логирует успешное выполнение
func (l *UILogger) Success(format string, args ...interface{}) {
	l.emit("SUCCESS", l.fileSuccess, format, args)
}

func (l *UILogger) fileDebug(format string, args ...interface{})   { l.fileLogger.Debug(format, args...) }
func (l *UILogger) fileInfo(format string, args ...interface{})    { l.fileLogger.Info(format, args...) }
func (l *UILogger) fileWarning(format string, args ...interface{}) { l.fileLogger.Warning(format, args...) }
func (l *UILogger) fileError(format string, args ...interface{})   { l.fileLogger.Error(format, args...) }
func (l *UILogger) fileSuccess(format string, args ...interface{}) { l.fileLogger.Success(format, args...) }

// Close закрывает базовый логгер
func (l *UILogger) Close() error {
	if l.fileLogger != nil {
		return l.fileLogger.Close()
	}
	return nil
}
