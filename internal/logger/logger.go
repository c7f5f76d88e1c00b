package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/mymmsc/reactor/internal/config"
)

func getSLogLevel(cfg config.LoggingConfig) slog.Level {
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// This is faster than console logger
func NewJsonLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	zerologLogger := zerolog.New(w).Level(toZerologLevel(getSLogLevel(cfg))).With().Timestamp().Logger()
	return slog.New(newZerologHandler(&zerologLogger))
}

func NewConsoleLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	zerologLogger := zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    false,
		TimeFormat: time.RFC3339Nano,
	}).Level(toZerologLevel(getSLogLevel(cfg))).With().Timestamp().Logger()
	return slog.New(newZerologHandler(&zerologLogger))
}

// New builds the process logger on stderr; stdout is left to command output.
func New(cfg config.LoggingConfig) *slog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	switch cfg.LogFormat {
	case "json":
		return NewJsonLogger(os.Stderr, cfg)
	default:
		return NewConsoleLogger(os.Stderr, cfg)
	}
}
