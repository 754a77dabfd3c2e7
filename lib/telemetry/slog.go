package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the default stderr logger. verbose enables debug
// logging, which also turns on resty request/response dumps where a
// restyutil output is configured.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
