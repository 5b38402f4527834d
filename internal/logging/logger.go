// Package logging builds the process zap logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultMaxAge       = 7 * 24 * time.Hour
	defaultRotationTime = 24 * time.Hour
)

// Config selects level, encoding and an optional rotating file sink.
type Config struct {
	Level string
	Dev   bool
	// FilePath enables a daily-rotated JSON file next to stdout, e.g.
	// "/var/log/tripauth/tripauth.log". Rotated files get a date suffix and
	// FilePath itself becomes a symlink to the current one.
	FilePath     string
	MaxAge       time.Duration
	RotationTime time.Duration
	// Output overrides stdout, mainly for tests.
	Output io.Writer
}

func levelFromString(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds the logger. The returned close function releases the file sink.
func New(configuration Config) (*zap.Logger, func() error, error) {
	level := levelFromString(configuration.Level)
	if configuration.Dev && strings.TrimSpace(configuration.Level) == "" {
		level = zapcore.DebugLevel
	}
	output := configuration.Output
	if output == nil {
		output = os.Stdout
	}

	var consoleEncoder zapcore.Encoder
	if configuration.Dev {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, zapcore.AddSync(output), level)}
	closeSink := func() error { return nil }

	if path := strings.TrimSpace(configuration.FilePath); path != "" {
		rotator, err := newRotator(path, configuration)
		if err != nil {
			return nil, nil, err
		}
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
		closeSink = rotator.Close
	}

	options := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if configuration.Dev {
		options = append(options, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), options...), closeSink, nil
}

func newRotator(path string, configuration Config) (*rotatelogs.RotateLogs, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	maxAge := configuration.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	rotationTime := configuration.RotationTime
	if rotationTime <= 0 {
		rotationTime = defaultRotationTime
	}
	return rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(rotationTime),
	)
}
