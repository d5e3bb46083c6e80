// Package logging builds the zap logger shared by every command.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures New.
type Option func(*settings)

type settings struct {
	level       zapcore.Level
	development bool
	fileDir     string
	maxBytes    int64
	backups     int
	fields      map[string]any
	stderr      bool
}

// WithLevel sets the minimum level from its name. Unknown names select info.
func WithLevel(name string) Option {
	return func(s *settings) { s.level = ParseLevel(name) }
}

// WithDevelopment switches to the human-readable console encoder.
func WithDevelopment(dev bool) Option {
	return func(s *settings) { s.development = dev }
}

// WithFile adds a size-rotated log file in dir.
func WithFile(dir string, maxBytes int64, backups int) Option {
	return func(s *settings) {
		s.fileDir = dir
		s.maxBytes = maxBytes
		s.backups = backups
	}
}

// WithStderr enables or disables the stderr sink.
func WithStderr(on bool) Option {
	return func(s *settings) { s.stderr = on }
}

// WithFields attaches fields to every entry.
func WithFields(fields map[string]any) Option {
	return func(s *settings) {
		if s.fields == nil {
			s.fields = make(map[string]any)
		}
		for k, v := range fields {
			if k != "" {
				s.fields[k] = v
			}
		}
	}
}

// ParseLevel converts a level name into a zap level.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a logger. The returned close function flushes and releases the
// file sink, if any.
func New(opts ...Option) (*zap.Logger, func() error) {
	s := settings{level: zapcore.InfoLevel, stderr: true}
	for _, opt := range opts {
		opt(&s)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	newEncoder := zapcore.NewJSONEncoder
	if s.development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		newEncoder = zapcore.NewConsoleEncoder
	}
	level := zap.NewAtomicLevelAt(s.level)

	var cores []zapcore.Core
	if s.stderr {
		cores = append(cores, zapcore.NewCore(newEncoder(encCfg), zapcore.Lock(os.Stderr), level))
	}
	var file *RotatingFile
	if s.fileDir != "" {
		file = NewRotatingFile(s.fileDir, FileName, s.maxBytes, s.backups)
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), file, level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), func() error { return nil }
	}

	zopts := []zap.Option{zap.AddCaller()}
	if s.development {
		zopts = append(zopts, zap.Development())
	}
	if len(s.fields) > 0 {
		fields := make([]zap.Field, 0, len(s.fields))
		for k, v := range s.fields {
			fields = append(fields, zap.Any(k, v))
		}
		zopts = append(zopts, zap.Fields(fields...))
	}
	logger := zap.New(zapcore.NewTee(cores...), zopts...)

	closeFn := func() error {
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closeFn
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
