package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a zerolog.Logger tagged with the service and environment. JSON
// is written in production and Lambda, console output elsewhere.
func New(service, environment, level string) zerolog.Logger {
	return newWithWriter(writerFor(environment), service, environment, level)
}

func newWithWriter(w io.Writer, service, environment, level string) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Str("service", service).
		Str("environment", environment).
		Logger().
		Level(parseLevel(level))
}

func writerFor(environment string) io.Writer {
	if isStructured(environment) {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

func isStructured(environment string) bool {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "production", "prod", "staging":
		return true
	}
	return false
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
