// Package logger builds the zap loggers used across the service. File output
// rotates through lumberjack and passes through a sanitizer core so credential
// material can never end up in a log line.
package logger

import (
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls log destinations, level, rotation, and sanitization.
type Config struct {
	Level        string       `yaml:"level"`
	File         string       `yaml:"file"`
	Console      bool         `yaml:"console"`
	Rotation     Rotation     `yaml:"rotation"`
	Sanitization Sanitization `yaml:"sanitization"`
}

type Rotation struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Sanitization configures sensitive-field masking.
type Sanitization struct {
	SensitiveFields []string `yaml:"sensitive_fields"`
	Mask            string   `yaml:"mask"`
}

// defaultSensitiveFields are masked even when the config names none.
var defaultSensitiveFields = []string{
	"password", "hashed_password", "token", "secret",
	"reset_token", "verification_token", "authorization",
}

// New builds the service logger from config.
func New(cfg Config) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := parseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.Console || cfg.File == "" {
		consoleEncoderConfig := encoderConfig
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig),
			zapcore.Lock(os.Stdout),
			level,
		))
	}

	if cfg.File != "" {
		rotation := cfg.Rotation
		if rotation.MaxSizeMB == 0 {
			rotation.MaxSizeMB = 100
		}
		if rotation.MaxAgeDays == 0 {
			rotation.MaxAgeDays = 28
		}

		fileWS := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig), fileWS, level))
	}

	sensitive := cfg.Sanitization.SensitiveFields
	if len(sensitive) == 0 {
		sensitive = defaultSensitiveFields
	}
	mask := cfg.Sanitization.Mask
	if mask == "" {
		mask = "[REDACTED]"
	}

	core := NewSanitizerCore(zapcore.NewTee(cores...), sensitive, mask)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
