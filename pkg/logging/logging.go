// package logging
//
// builds the zerolog loggers shared by the migrator packages
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format : output encoding of the log stream
type Format string

const (
	// FormatConsole : human readable, coloured output
	FormatConsole Format = "console"
	// FormatJSON : one json object per log line
	FormatJSON Format = "json"
)

// New : logger writing to stderr
func New(service string, level string, format Format) (zerolog.Logger, error) {
	return NewWithWriter(os.Stderr, service, level, format)
}

// NewWithWriter : logger writing to w, tagged with the service name
func NewWithWriter(w io.Writer, service string, level string, format Format) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	out := w
	switch format {
	case FormatConsole, "":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format %q", format)
	}
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger(), nil
}

// ParseLevel : like zerolog.ParseLevel but an empty string means info
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
