package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configura el logger.
type Config struct {
	// Env: "dev" (consola con colores) o "prod" (JSON). Default: "dev".
	Env string

	// Level mínimo: "debug", "info", "warn", "error". Default: "info".
	Level string

	ServiceName string
	Version     string

	// File, si tiene Path, duplica la salida a un archivo rotado.
	File FileConfig
}

// FileConfig configura el sink rotado (lumberjack).
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func build(cfg Config) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	prod := strings.ToLower(strings.TrimSpace(cfg.Env)) == "prod"

	var enc zapcore.Encoder
	if prod {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeCaller = zapcore.ShortCallerEncoder
		enc = zapcore.NewJSONEncoder(ec)
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		ec.EncodeCaller = zapcore.ShortCallerEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)}

	if p := strings.TrimSpace(cfg.File.Path); p != "" {
		// El archivo siempre va en JSON, aunque la consola sea dev.
		fec := zap.NewProductionEncoderConfig()
		fec.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fec),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   p,
				MaxSize:    orDefault(cfg.File.MaxSizeMB, 100),
				MaxBackups: orDefault(cfg.File.MaxBackups, 5),
				MaxAge:     orDefault(cfg.File.MaxAgeDays, 30),
				Compress:   cfg.File.Compress,
			}),
			level,
		))
	}

	opts := []zap.Option{zap.AddCaller()}
	if prod {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	l := zap.New(zapcore.NewTee(cores...), opts...)

	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	if cfg.Version != "" {
		l = l.With(zap.String("version", cfg.Version))
	}
	return l
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseLevel convierte un string a zapcore.Level.
func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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
