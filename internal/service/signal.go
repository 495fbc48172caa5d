package service

import (
	"context"
	"os"

	"codeberg.org/mutker/argon1d/internal/logger"
	"codeberg.org/mutker/argon1d/internal/message"
)

// watchSignals turns the first termination signal into a Stop message.
func watchSignals(ctx context.Context, sender message.Sender, sigs <-chan os.Signal) error {
	select {
	case <-ctx.Done():
		return nil
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("Received stop signal")
		return sender.Send(ctx, message.Stop{})
	}
}
