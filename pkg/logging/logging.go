// Package logging configures the process-wide zerolog logger. The teacher
// repo logs through the standard library's log package; the rest of the
// example corpus reaches for zerolog, so that's what every component in
// this tree logs through instead.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a console-writer zerolog.Logger at the given level (one of
// zerolog's level names: debug, info, warn, error; unknown values fall
// back to info).
func New(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}
