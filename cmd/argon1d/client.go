package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/lock"
	"codeberg.org/mutker/argon1d/internal/message"
	"codeberg.org/mutker/argon1d/internal/policy"
	"github.com/spf13/cobra"
)

const sendTimeout = 5 * time.Second

var fanCmd = &cobra.Command{
	Use:   "fan <speed>",
	Short: "Set fan speed (0-100) on the running service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speed, err := parseSpeed(args[0])
		if err != nil {
			return err
		}

		return send(cmd.Context(), message.SetFan{Speed: speed})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return send(cmd.Context(), message.Stop{})
	},
}

func init() {
	rootCmd.AddCommand(fanCmd, stopCmd)
}

func parseSpeed(arg string) (uint8, error) {
	n, err := strconv.ParseUint(arg, 10, 8)
	if err != nil || n > policy.MaxSpeed {
		return 0, errors.New().WithData(errors.ErrInvalidArgument,
			fmt.Sprintf("speed must be an integer between 0 and %d, got %q", policy.MaxSpeed, arg))
	}

	return uint8(n), nil
}

func send(parent context.Context, m message.Message) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, sendTimeout)
	defer cancel()

	path := lock.New(cfg.RuntimeDir).SocketPath()
	if err := message.Send(ctx, path, m); err != nil {
		if errors.HasCode(err, errors.ErrChannelUnavailable) {
			return fmt.Errorf("service is not running (no listener on %s)", filepath.Clean(path))
		}
		return err
	}

	return nil
}
