//go:build !linux

package fan

import (
	"runtime"

	"codeberg.org/mutker/argon1d/internal/errors"
)

// I2C is only available on Linux.
type I2C struct{}

func Open(path string, _ int) (*I2C, error) {
	return nil, errors.New().WithData(errors.ErrBusUnavailable, path+": i2c-dev not supported on "+runtime.GOOS)
}

func (*I2C) Apply(speed uint8) error {
	if err := validateSpeed(speed); err != nil {
		return err
	}

	return errors.New().New(errors.ErrBusUnavailable)
}

func (*I2C) Close() error { return nil }
