package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"whisprd/internal/config"
	"whisprd/internal/manager"
)

var (
	cfgPath  string
	logLevel string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "whisprd",
		Short:        "Local model runtime manager",
		Long:         "whisprd manages local speech and text model artifacts and supervises their inference runtimes: a persistent completion server and a per-invocation transcriber.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (.yaml/.json/.toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newModelsCmd(),
		newInferCmd(),
		newTranscribeCmd(),
		newGpuCmd(),
	)
	return root
}

func loadConfig() (config.Config, error) {
	if cfgPath == "" {
		return config.Config{}, nil
	}
	return config.Load(cfgPath)
}

func newLogger() zerolog.Logger {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}

// newManager wires a Manager for one-shot CLI commands.
func newManager() (*manager.Manager, zerolog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	log := newLogger()
	m, err := manager.New(log, cfg)
	if err != nil {
		return nil, log, err
	}
	return m, log, nil
}
