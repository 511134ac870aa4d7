package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. Unknown or empty levels fall back to
// info. Format "console" selects human-readable output; anything else emits
// JSON lines.
func New(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
