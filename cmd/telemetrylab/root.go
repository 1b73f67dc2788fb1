package main

import (
	"codeberg.org/mutker/telemetrylab/internal/config"
	"codeberg.org/mutker/telemetrylab/internal/logger"
	"github.com/spf13/cobra"
)

// All linker flags are set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cfg holds the loaded configuration for commands that need it.
var cfg *config.Config

var configFile string

var rootCmd = &cobra.Command{
	Use:           "telemetrylab",
	Short:         "Adaptive compute scheduler with rolling jank telemetry.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default /etc/telemetrylab.toml)")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(runCmd, statusCmd, configCmd, versionCmd)
}

// loadConfig reads the config and initializes the logger from it.
func loadConfig(cmd *cobra.Command) error {
	opts := []config.Option{config.WithFlags(cmd.Flags())}
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}

	loaded, err := config.Load(opts...)
	if err != nil {
		return err
	}

	if err := logger.Init(loaded.LogLevel, logger.IsService()); err != nil {
		return err
	}
	logger.Debug().Str("log_level", loaded.LogLevel).Msg("Config loaded")

	cfg = loaded
	return nil
}
