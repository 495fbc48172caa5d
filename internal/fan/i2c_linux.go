//go:build linux

package fan

import (
	"os"
	"sync"

	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/logger"
	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl from linux/i2c-dev.h.
const i2cSlave = 0x0703

// I2C is a fan controller on an i2c-dev character device.
type I2C struct {
	mu      sync.Mutex
	fd      int
	path    string
	address int
}

// Open opens the bus device and selects the controller address.
func Open(path string, address int) (*I2C, error) {
	errFactory := errors.New()

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrBusUnavailable, &os.PathError{Op: "open", Path: path, Err: err})
	}

	if err := unix.IoctlSetInt(fd, i2cSlave, address); err != nil {
		_ = unix.Close(fd)
		return nil, errFactory.Wrap(errors.ErrBusUnavailable, err)
	}

	logger.Debug().Str("bus", path).Int("address", address).Msg("Opened I2C bus")

	return &I2C{fd: fd, path: path, address: address}, nil
}

// Apply sends speed as one byte.
func (d *I2C) Apply(speed uint8) error {
	if err := validateSpeed(speed); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fd < 0 {
		return errors.New().Wrap(errors.ErrBus, unix.EBADF)
	}

	n, err := unix.Write(d.fd, []byte{speed})
	if err == nil && n != 1 {
		err = unix.EIO
	}
	if err != nil {
		return errors.New().Wrap(errors.ErrBus, err)
	}

	logger.Info().Uint8("speed", speed).Msgf("Set fan speed to %d", speed)

	return nil
}

// Close releases the bus device.
func (d *I2C) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fd < 0 {
		return nil
	}

	err := unix.Close(d.fd)
	d.fd = -1
	if err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
