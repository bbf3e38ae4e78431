package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solatis/fixengine/internal/core/config"
	"github.com/solatis/fixengine/internal/core/logging"
	"github.com/solatis/fixengine/internal/dictionary"
)

// Version is the engine release.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "fixengine",
	Short:         "FIX session engine",
	Long:          `fixengine runs FIX tag=value sessions with persistent sequence numbers and converts messages to and from FAST.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "session store URL (memory://, sqlite://path, postgres://..., badger://path, redis://host:port/db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and installs the process logger. The returned
// function flushes the logger.
func setup(cmd *cobra.Command) (*config.EngineConfig, *slog.Logger, func(), error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, sync := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, func() { _ = sync() }, nil
}

// loadDictionary returns the dictionary at path, or the built-in profile
// for beginString.
func loadDictionary(path, beginString string) (*dictionary.Dictionary, error) {
	if path != "" {
		d, err := dictionary.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load dictionary: %w", err)
		}
		return d, nil
	}
	d, ok := dictionary.ForVersion(beginString)
	if !ok {
		return nil, fmt.Errorf("no built-in dictionary for %s (set dictionary.path)", beginString)
	}
	return d, nil
}
