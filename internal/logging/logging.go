package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. An empty path logs to stderr, which is
// what the bench rig and tests want.
func Init(level zerolog.Level, path string) {
	var w zerolog.LevelWriter
	if path == "" {
		w = zerolog.MultiLevelWriter(os.Stderr)
	} else {
		logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open log file: %w", err))
		}
		w = zerolog.MultiLevelWriter(logFile)
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
}
