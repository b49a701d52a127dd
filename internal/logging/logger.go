// Package logging configures the global zerolog logger and emits the
// cold-start summary each Lambda logs once.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnvVar selects the log level: debug, info, warn, error.
const LevelEnvVar = "HUNT_LOG_LEVEL"

// Init configures the global logger from HUNT_LOG_LEVEL. Inside Lambda the
// output stays JSON so CloudWatch Logs Insights can query fields; elsewhere
// it is rendered for a terminal.
func Init() {
	InitWithLevel(os.Getenv(LevelEnvVar))
}

// InitWithLevel is Init with an explicit level, used by the CLI's
// --log-level flag.
func InitWithLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	var out io.Writer = os.Stderr
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
