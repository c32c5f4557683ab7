package logging

import (
	"log/slog"
	"os"
	"strings"
)

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// NewJSONLogger builds the structured logger shared by the api and worker
// binaries: JSON lines on stdout, tagged with the service name.
func NewJSONLogger(service, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	return logger.With(slog.String("service", service))
}

func parseLevel(raw string) slog.Level {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return level
	}
	return slog.LevelInfo
}
