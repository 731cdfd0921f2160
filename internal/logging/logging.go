// Package logging provides component-scoped zerolog loggers.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger tagged with the given component. APP_ENV=dev switches
// to the human-readable console writer; anything else emits JSON.
func New(component string) zerolog.Logger {
	env := strings.ToLower(os.Getenv("APP_ENV"))
	var l zerolog.Logger
	if env == "dev" {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		l = zerolog.New(writer)
	} else {
		l = zerolog.New(os.Stdout)
	}
	return l.With().Timestamp().Str("component", component).Logger()
}

// Nop returns a logger that discards everything. Used by tests and as the
// default when a dependency is constructed without one.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
