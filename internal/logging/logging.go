package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process. Development gets human-readable
// console output at debug level; everything else logs JSON at info level.
func Setup(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	logger := zerolog.New(os.Stderr)
	if environment == "development" {
		level = zerolog.DebugLevel
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger = logger.With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
