package main

import (
	"context"

	"codeberg.org/mutker/argon1d/internal/audit"
	"codeberg.org/mutker/argon1d/internal/fan"
	"codeberg.org/mutker/argon1d/internal/logger"
	"codeberg.org/mutker/argon1d/internal/service"
	"codeberg.org/mutker/argon1d/internal/thermal"
	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Run the monitoring service",
	Args:  cobra.NoArgs,
	RunE:  runService,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
}

func runService(_ *cobra.Command, _ []string) error {
	driver, err := fan.Open(cfg.I2CBus, cfg.I2CAddress)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close I2C bus")
		}
	}()

	recorder, err := audit.NewService(cfg.Audit)
	if err != nil {
		return err
	}

	logger.Debug().
		Dur("poll_interval", cfg.PollInterval).
		Dur("cooldown_delay", cfg.CooldownDelay).
		Interface("thresholds", cfg.Thresholds).
		Msg("Starting service")

	svc := service.New(cfg, thermal.NewZone(cfg.ThermalZone), driver, service.WithRecorder(recorder))

	return svc.Run(context.Background())
}
