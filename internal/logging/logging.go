// Package logging configures the structured logger shared by all pipeline
// components.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates the root logger. Debug enables debug-level output; the console
// writer keeps CLI output readable while staying structured.
func New(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
