package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// main loads the declarative config document and builds the zerolog
// logger, generalizing the teacher's log.Printf call sites (main.go) into
// structured logging per spec.md's ambient stack, then hands off to
// runSupervisor for the actual start/shutdown sequencing (C11).
func main() {
	cfg, err := LoadConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(level).
		With().Timestamp().Logger()

	if err := runSupervisor(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("tracker exited with error")
	}
}
