package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupWithFile is Setup, but also tees JSON log lines to a size-rotated
// file when logFile is non-empty. percolatorctl calls it for every
// command, so stdout stays a human console and the file keeps the history
// across invocations.
func SetupWithFile(service, env, logFile string) *slog.Logger {
	if strings.TrimSpace(logFile) == "" {
		return Setup(service, env)
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}

	var w io.Writer = io.MultiWriter(os.Stdout, rotator)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []any{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	base := slog.New(handler).With(attrs...)
	slog.SetDefault(base)
	return base
}
