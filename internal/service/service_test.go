package service_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"codeberg.org/mutker/argon1d/internal/audit"
	"codeberg.org/mutker/argon1d/internal/config"
	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/lock"
	"codeberg.org/mutker/argon1d/internal/message"
	"codeberg.org/mutker/argon1d/internal/service"
	"codeberg.org/mutker/argon1d/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	// Keep the socket path short.
	dir, err := os.MkdirTemp("", "argon")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.RuntimeDir = filepath.Join(dir, "run")
	cfg.PollInterval = 5 * time.Millisecond
	cfg.CooldownDelay = 10 * time.Millisecond

	return cfg
}

type running struct {
	svc  *service.Service
	done chan error
}

func start(t *testing.T, svc *service.Service) *running {
	t.Helper()

	r := &running{svc: svc, done: make(chan error, 1)}
	go func() { r.done <- svc.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(svc.SocketPath())
		return err == nil
	}, 5*time.Second, time.Millisecond)

	return r
}

func (r *running) send(t *testing.T, m message.Message) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, message.Send(ctx, r.svc.SocketPath(), m))
}

func (r *running) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-r.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
		return nil
	}
}

func waitApplied(t *testing.T, d *fakeDriver, want uint8) {
	t.Helper()

	select {
	case got := <-d.applied:
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("fan speed %d was never applied", want)
	}
}

func TestServiceServesCommands(t *testing.T) {
	cfg := testConfig(t)
	driver := newFakeDriver()
	svc := service.New(cfg, constSensor{temp: 40}, driver)

	r := start(t, svc)
	waitApplied(t, driver, 0)

	r.send(t, message.SetFan{Speed: 55})
	waitApplied(t, driver, 55)

	// Repeating the applied speed produces no bus write.
	r.send(t, message.SetFan{Speed: 55})

	// A malformed frame is dropped and the acceptor keeps serving.
	conn, err := net.Dial("unix", svc.SocketPath())
	require.NoError(t, err)
	_, err = conn.Write([]byte{0x09})
	require.NoError(t, err)
	conn.Close()

	r.send(t, message.SetFan{Speed: 70})
	waitApplied(t, driver, 70)

	r.send(t, message.Stop{})
	require.NoError(t, r.wait(t))

	assert.Equal(t, []uint8{0, 55, 70}, driver.Speeds())

	l := lock.New(cfg.RuntimeDir)
	assert.False(t, l.Held())
	_, err = os.Stat(l.SocketPath())
	assert.True(t, os.IsNotExist(err))
}

func TestServiceAppliesPolicy(t *testing.T) {
	cfg := testConfig(t)
	driver := newFakeDriver()
	svc := service.New(cfg, constSensor{temp: 62}, driver)

	r := start(t, svc)
	waitApplied(t, driver, 0)
	waitApplied(t, driver, 55)

	r.send(t, message.Stop{})
	require.NoError(t, r.wait(t))
	assert.Equal(t, []uint8{0, 55}, driver.Speeds())
}

func TestServiceAlreadyRunning(t *testing.T) {
	cfg := testConfig(t)

	held := lock.New(cfg.RuntimeDir)
	require.NoError(t, held.Acquire())

	driver := newFakeDriver()
	rec := &fakeRecorder{}
	err := service.New(cfg, constSensor{temp: 40}, driver, service.WithRecorder(rec)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
	assert.Empty(t, driver.Speeds())
	assert.True(t, rec.Closed())
	assert.True(t, held.Held())

	require.NoError(t, held.Release())

	// After a clean shutdown the service starts again.
	r := start(t, service.New(cfg, constSensor{temp: 40}, driver))
	r.send(t, message.Stop{})
	require.NoError(t, r.wait(t))

	r = start(t, service.New(cfg, constSensor{temp: 40}, driver))
	r.send(t, message.Stop{})
	require.NoError(t, r.wait(t))
}

func TestServiceAlreadyBoundKeepsLiveSocket(t *testing.T) {
	cfg := testConfig(t)
	driver := newFakeDriver()
	first := start(t, service.New(cfg, constSensor{temp: 40}, driver))
	waitApplied(t, driver, 0)

	// Without the marker the second instance gets as far as binding.
	l := lock.New(cfg.RuntimeDir)
	require.NoError(t, os.Remove(l.PIDPath()))

	rec := &fakeRecorder{}
	err := service.New(cfg, constSensor{temp: 40}, newFakeDriver(), service.WithRecorder(rec)).
		Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyBound))
	assert.True(t, rec.Closed())

	_, err = os.Stat(l.SocketPath())
	require.NoError(t, err)

	first.send(t, message.SetFan{Speed: 30})
	waitApplied(t, driver, 30)
	first.send(t, message.Stop{})
	require.NoError(t, first.wait(t))
}

func TestServiceStopsOnSignal(t *testing.T) {
	cfg := testConfig(t)
	driver := newFakeDriver()
	svc := service.New(cfg, constSensor{temp: 40}, driver, service.WithSignals(syscall.SIGUSR1))

	r := start(t, svc)
	waitApplied(t, driver, 0)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.NoError(t, r.wait(t))
	assert.False(t, lock.New(cfg.RuntimeDir).Held())
}

func TestServiceStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	driver := newFakeDriver()
	svc := service.New(cfg, constSensor{temp: 40}, driver)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	waitApplied(t, driver, 0)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.False(t, lock.New(cfg.RuntimeDir).Held())
}

func TestServiceFailSafeOnSensorLoss(t *testing.T) {
	cfg := testConfig(t)
	driver := newFakeDriver()
	svc := service.New(cfg, failingSensor{}, driver, service.WithMaxSensorFailures(2))

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrSensorUnavailable))
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}

	assert.Equal(t, []uint8{0, 100}, driver.Speeds())
	assert.False(t, lock.New(cfg.RuntimeDir).Held())
}

func TestServiceFailSafeOnPollerError(t *testing.T) {
	cfg := testConfig(t)
	driver := newFakeDriver()
	svc := service.New(cfg, brokenSensor{}, driver)

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrInternal))
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}

	assert.Equal(t, []uint8{0, 100}, driver.Speeds())
}

func TestServiceBaselineFailureReleasesLock(t *testing.T) {
	cfg := testConfig(t)
	driver := newFakeDriver()
	driver.fail = true

	err := service.New(cfg, constSensor{temp: 40}, driver).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBusUnavailable))
	assert.False(t, lock.New(cfg.RuntimeDir).Held())
}

func TestServiceRecordsAppliedSpeeds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit = audit.Config{
		Enabled:   true,
		DBPath:    filepath.Join(t.TempDir(), "audit.db"),
		BatchSize: 1,
	}
	rec, err := audit.NewService(cfg.Audit)
	require.NoError(t, err)

	driver := newFakeDriver()
	r := start(t, service.New(cfg, constSensor{temp: 40}, driver, service.WithRecorder(rec)))
	waitApplied(t, driver, 0)

	r.send(t, message.SetFan{Speed: 30})
	waitApplied(t, driver, 30)
	r.send(t, message.Stop{})
	require.NoError(t, r.wait(t))

	// The recorder is closed by the service.
	assert.NoError(t, rec.Close())
}

func TestZoneSensorSatisfiesInterface(t *testing.T) {
	var _ thermal.Sensor = thermal.NewZone("")
}
