// Package lock manages the marker that guarantees a single running service:
// a pid file whose presence means the service is active. It also names the
// control socket living next to it; the socket file belongs to whoever bound
// it and is removed by its listener.
package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"codeberg.org/mutker/argon1d/internal/errors"
)

const (
	pidFile    = "argon1d.pid"
	socketFile = "argon1d.sock"

	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// ServiceLock is the pid file and socket pair in a runtime directory.
type ServiceLock struct {
	dir      string
	mu       sync.Mutex
	acquired bool
}

// New returns a lock rooted at dir. Nothing is touched on disk until Acquire.
func New(dir string) *ServiceLock {
	return &ServiceLock{dir: dir}
}

// PIDPath returns the liveness marker path.
func (l *ServiceLock) PIDPath() string {
	return filepath.Join(l.dir, pidFile)
}

// SocketPath returns the control socket path.
func (l *ServiceLock) SocketPath() string {
	return filepath.Join(l.dir, socketFile)
}

// Held reports whether a liveness marker exists.
func (l *ServiceLock) Held() bool {
	_, err := os.Stat(l.PIDPath())
	return err == nil
}

// Check fails with ErrAlreadyRunning when a marker is present.
func (l *ServiceLock) Check() error {
	if l.Held() {
		return errors.New().WithData(errors.ErrAlreadyRunning, l.PIDPath())
	}

	return nil
}

// Acquire creates the runtime directory if needed and writes the pid file.
// The file is created exclusively, so a racing instance fails with
// ErrAlreadyRunning.
func (l *ServiceLock) Acquire() error {
	errFactory := errors.New()
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, defaultDirPerm); err != nil {
		return errFactory.Wrap(errors.ErrLockFailed, err)
	}

	f, err := os.OpenFile(l.PIDPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePerm)
	if err != nil {
		if os.IsExist(err) {
			return errFactory.WithData(errors.ErrAlreadyRunning, l.PIDPath())
		}
		return errFactory.Wrap(errors.ErrLockFailed, err)
	}

	_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	closeErr := f.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(l.PIDPath())
		return errFactory.Wrap(errors.ErrLockFailed, writeErr)
	}

	l.acquired = true

	return nil
}

// Release removes the pid file. It is a no-op when the lock was not acquired
// by this instance, and safe to call twice.
func (l *ServiceLock) Release() error {
	errFactory := errors.New()
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.acquired {
		return nil
	}
	l.acquired = false

	if err := os.Remove(l.PIDPath()); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
