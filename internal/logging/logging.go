package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects the log destination and format
type Options struct {
	Out     io.Writer
	Verbose bool
	// JSON writes one object per line, for the render service where logs are
	// collected rather than read
	JSON bool
}

// Init initializes the global logger for the terminal
func Init(verbose bool) {
	Setup(Options{Out: os.Stderr, Verbose: verbose})
}

// Setup initializes the global logger
func Setup(opts Options) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    out != io.Writer(os.Stderr),
		}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent creates a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
