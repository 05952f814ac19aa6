// Package logging builds the zap logger used by the binaries.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"drone-rpc/config"
)

// New returns a logger writing to stderr and, when cfg.File is set, to a rotated
// JSON file as well.
func New(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var console zapcore.Encoder
	switch cfg.Format {
	case "", "console":
		c := encCfg
		c.EncodeLevel = zapcore.CapitalColorLevelEncoder
		console = zapcore.NewConsoleEncoder(c)
	case "json":
		console = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("log format %q: want console or json", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.Lock(os.Stderr), level),
	}
	if cfg.File != "" {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileWriter(cfg), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func fileWriter(cfg config.Log) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}
