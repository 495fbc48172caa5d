package service_test

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/argon1d/internal/audit"
	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/message"
)

type fakeDriver struct {
	mu      sync.Mutex
	speeds  []uint8
	fail    bool
	applied chan uint8
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{applied: make(chan uint8, 64)}
}

func (d *fakeDriver) Apply(speed uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail {
		return errors.New().New(errors.ErrBus)
	}
	d.speeds = append(d.speeds, speed)
	d.applied <- speed

	return nil
}

func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) Speeds() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]uint8(nil), d.speeds...)
}

type constSensor struct {
	temp int
}

func (s constSensor) Read() (int, error) { return s.temp, nil }

type failingSensor struct{}

func (failingSensor) Read() (int, error) {
	return 0, errors.New().New(errors.ErrSensorUnavailable)
}

// brokenSensor fails with an error the poller does not retry.
type brokenSensor struct{}

func (brokenSensor) Read() (int, error) {
	return 0, errors.New().New(errors.ErrInternal)
}

type fakeRecorder struct {
	mu     sync.Mutex
	closed bool
}

func (*fakeRecorder) Record(_ context.Context, _ *audit.Entry) error { return nil }

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

func (r *fakeRecorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closed
}

type sentMessage struct {
	msg message.Message
	at  time.Time
}

// scriptRig plays a fixed sequence of readings and records what the poller
// sends. After the script runs out it cancels the poller.
type scriptRig struct {
	mu       sync.Mutex
	readings []int
	reads    []time.Time
	// commanded holds the last sent speed at the time of each read.
	commanded []uint8
	sent      []sentMessage
	cancel    context.CancelFunc
}

func (r *scriptRig) Read() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reads = append(r.reads, time.Now())
	r.commanded = append(r.commanded, r.lastSpeed())

	i := len(r.reads) - 1
	if i >= len(r.readings) {
		r.cancel()
		return r.readings[len(r.readings)-1], nil
	}

	return r.readings[i], nil
}

func (r *scriptRig) Send(_ context.Context, m message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, sentMessage{msg: m, at: time.Now()})

	return nil
}

func (r *scriptRig) lastSpeed() uint8 {
	for i := len(r.sent) - 1; i >= 0; i-- {
		if m, ok := r.sent[i].msg.(message.SetFan); ok {
			return m.Speed
		}
	}

	return 0
}

func (r *scriptRig) sentSpeeds() []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var speeds []uint8
	for _, s := range r.sent {
		if m, ok := s.msg.(message.SetFan); ok {
			speeds = append(speeds, m.Speed)
		}
	}

	return speeds
}
