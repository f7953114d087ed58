package logger

import (
	"log/slog"
	"os"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Err(err error, msg string, args ...any)
}

type SLogger struct{ l *slog.Logger }

// New 基于 slog 创建日志记录器
func New(l *slog.Logger) Logger { return &SLogger{l: l} }

func (s *SLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *SLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *SLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }

// Err 以 error 级别记录并附带底层错误
func (s *SLogger) Err(err error, msg string, args ...any) {
	s.l.Error(msg, append([]any{"err", err}, args...)...)
}

type noop struct{}

// NewNoopLogger 创建不输出任何内容的日志记录器
func NewNoopLogger() Logger { return noop{} }

func (noop) Debug(string, ...any)      {}
func (noop) Info(string, ...any)       {}
func (noop) Warn(string, ...any)       {}
func (noop) Err(error, string, ...any) {}

// NewDefault 创建输出到标准输出的默认日志记录器
func NewDefault(level slog.Level) Logger {
	return New(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
