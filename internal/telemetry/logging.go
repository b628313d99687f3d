package telemetry

import (
	"io"
	"log/slog"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// NewLogger returns a slog logger rendered by charmbracelet/log at the given level.
// Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           lvl,
		Prefix:          "voicestats",
	})
	return slog.New(handler)
}
