// Package fan drives the Argon ONE fan controller, which takes the duty
// cycle as a single SMBus byte.
package fan

import (
	"fmt"

	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/policy"
)

const (
	DefaultBus     = "/dev/i2c-1"
	DefaultAddress = 0x1a
)

// Driver issues speed commands to the fan hardware.
type Driver interface {
	Apply(speed uint8) error
	Close() error
}

func validateSpeed(speed uint8) error {
	if speed > policy.MaxSpeed {
		return errors.New().WithData(errors.ErrInvalidArgument, fmt.Sprintf("fan speed %d out of range", speed))
	}

	return nil
}
