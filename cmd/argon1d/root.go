package main

import (
	"codeberg.org/mutker/argon1d/internal/config"
	"codeberg.org/mutker/argon1d/internal/logger"
	"github.com/spf13/cobra"
)

// version can be set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:               "argon1d",
	Short:             "Argon ONE fan control daemon",
	Long:              "Keeps the Argon ONE case fan matched to the SoC temperature and accepts manual overrides.",
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel.String(), "Log level: debug, info, warning, error")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(config.WithFlags(cmd.Flags()))
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel.String())
	if err != nil {
		return err
	}
	logger.Init(level, cmd == serviceCmd && logger.IsService())
	logger.Debug().Str("command", cmd.Name()).Msg("Config loaded")

	return nil
}
