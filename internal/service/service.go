// Package service runs the fan control daemon: a signal watcher and a
// temperature poller feed commands through the control socket to a single
// acceptor, which is the only code that touches the fan.
package service

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/argon1d/internal/audit"
	"codeberg.org/mutker/argon1d/internal/config"
	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/fan"
	"codeberg.org/mutker/argon1d/internal/lock"
	"codeberg.org/mutker/argon1d/internal/logger"
	"codeberg.org/mutker/argon1d/internal/message"
	"codeberg.org/mutker/argon1d/internal/policy"
	"codeberg.org/mutker/argon1d/internal/thermal"
	"golang.org/x/sync/errgroup"
)

// failSafeSpeed is commanded when the poller gives up.
const failSafeSpeed = policy.MaxSpeed

type Option func(*Service)

// WithRecorder records every speed that reaches the fan. Run closes it.
func WithRecorder(r audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithSignals replaces the signals that trigger a shutdown.
func WithSignals(sigs ...os.Signal) Option {
	return func(s *Service) {
		s.signals = sigs
	}
}

// WithMaxSensorFailures sets how many consecutive sensor failures the
// poller tolerates.
func WithMaxSensorFailures(n int) Option {
	return func(s *Service) {
		s.maxSensorFailures = n
	}
}

type Service struct {
	cfg               *config.Config
	sensor            thermal.Sensor
	driver            fan.Driver
	recorder          audit.Recorder
	lock              *lock.ServiceLock
	signals           []os.Signal
	maxSensorFailures int

	// applied is owned by the acceptor.
	applied uint8
}

func New(cfg *config.Config, sensor thermal.Sensor, driver fan.Driver, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		sensor:  sensor,
		driver:  driver,
		lock:    lock.New(cfg.RuntimeDir),
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SocketPath returns the control socket of this service.
func (s *Service) SocketPath() string {
	return s.lock.SocketPath()
}

// Run acquires the service lock, zeroes the fan and serves commands until a
// Stop message arrives, ctx is canceled or the poller fails. The lock is
// released on every return path after it was taken. The fan is forced to
// full speed when the poller fails.
func (s *Service) Run(ctx context.Context) (err error) {
	errFactory := errors.New()
	defer s.closeRecorder()

	if err := s.lock.Check(); err != nil {
		return err
	}
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.lock.Release(); releaseErr != nil {
			logger.Error().Err(releaseErr).Msg("Failed to release service lock")
			if err == nil {
				err = releaseErr
			}
		}
	}()

	if err := s.driver.Apply(0); err != nil {
		return errFactory.Wrap(errors.ErrBusUnavailable, err)
	}
	s.applied = 0

	// Register before the socket exists so no signal is missed once
	// clients can reach the service.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, s.signals...)
	defer signal.Stop(sigs)

	ln, err := message.Listen(s.lock.SocketPath())
	if err != nil {
		return err
	}
	defer ln.Close()

	logger.Info().Str("socket", ln.Path()).Msg("Service started")

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	client := message.NewClient(ln.Path())
	poller := NewPoller(PollerConfig{
		Thresholds:    s.cfg.Thresholds,
		PollInterval:  s.cfg.PollInterval,
		CooldownDelay: s.cfg.CooldownDelay,
		MaxFailures:   s.maxSensorFailures,
	}, s.sensor, client)

	g.Go(func() error {
		return watchSignals(gctx, client, sigs)
	})
	var pollErr error
	g.Go(func() error {
		pollErr = poller.Run(gctx)
		return pollErr
	})
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	acceptErr := s.accept(gctx, ln)
	stop()
	regionErr := g.Wait()

	if regionErr != nil {
		logger.Error().Err(regionErr).Msg("Service region failed")
	}
	if pollErr != nil {
		logger.Warn().Uint8("speed", failSafeSpeed).Msg("Temperature control lost, forcing fan speed")
		s.setSpeed(context.Background(), failSafeSpeed, true)
	}

	logger.Info().Msg("Stopped")

	if acceptErr != nil {
		return acceptErr
	}

	return regionErr
}

// accept serves one message per connection until Stop or until the listener
// is closed.
func (s *Service) accept(ctx context.Context, ln *message.Listener) error {
	for {
		msg, err := ln.Accept()
		if err != nil {
			if errors.HasCode(err, errors.ErrProtocol) {
				logger.Warn().Err(err).Msg("Dropped malformed control message")
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.New().Wrap(errors.ErrInternal, err)
		}

		switch m := msg.(type) {
		case message.Stop:
			logger.Info().Msg("Stop requested")
			return nil
		case message.SetFan:
			s.setSpeed(ctx, m.Speed, false)
		}
	}
}

// setSpeed writes speed to the fan unless it is already applied. Bus errors
// are logged; the acceptor keeps serving.
func (s *Service) setSpeed(ctx context.Context, speed uint8, force bool) {
	if speed == s.applied && !force {
		logger.Debug().Uint8("speed", speed).Msg("Fan speed already applied")
		return
	}

	if err := s.driver.Apply(speed); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Uint8("speed", speed).Msg("Failed to set fan speed")
		} else {
			logger.Error().Err(err).Uint8("speed", speed).Msg("Failed to set fan speed")
		}
		return
	}

	previous := s.applied
	s.applied = speed

	if s.recorder == nil {
		return
	}
	entry := &audit.Entry{Timestamp: time.Now(), Speed: speed, PreviousSpeed: previous}
	if err := s.recorder.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to record fan speed change")
	}
}

func (s *Service) closeRecorder() {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close audit recorder")
	}
}
