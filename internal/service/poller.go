package service

import (
	"context"
	"time"

	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/logger"
	"codeberg.org/mutker/argon1d/internal/message"
	"codeberg.org/mutker/argon1d/internal/policy"
	"codeberg.org/mutker/argon1d/internal/thermal"
)

const (
	defaultMaxSensorFailures = 5
	defaultMaxBackoff        = time.Minute
)

// PollerConfig controls the temperature polling region.
type PollerConfig struct {
	Thresholds    policy.Thresholds
	PollInterval  time.Duration
	CooldownDelay time.Duration
	// MaxFailures is the number of consecutive sensor failures tolerated
	// before Run gives up.
	MaxFailures int
	MaxBackoff  time.Duration
}

// Poller reads the sensor, applies the speed policy and sends SetFan
// commands. Its current speed is a local shadow of what it last commanded.
type Poller struct {
	cfg     PollerConfig
	sensor  thermal.Sensor
	sender  message.Sender
	current uint8
}

func NewPoller(cfg PollerConfig, sensor thermal.Sensor, sender message.Sender) *Poller {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxSensorFailures
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	return &Poller{cfg: cfg, sensor: sensor, sender: sender}
}

// Current returns the last speed the poller commanded.
func (p *Poller) Current() uint8 {
	return p.current
}

// Run polls until ctx is done. Sensor failures are retried with backoff;
// it returns an error after MaxFailures consecutive failures or when a
// command cannot be delivered.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0

	for {
		wait := p.cfg.PollInterval

		if err := p.step(ctx); err != nil {
			if !errors.HasCode(err, errors.ErrSensorUnavailable) {
				return err
			}

			failures++
			if failures >= p.cfg.MaxFailures {
				return err
			}

			wait = p.backoff(failures)
			logger.Warn().Err(err).
				Int("failures", failures).
				Dur("retry_in", wait).
				Msg("Failed to read temperature")
		} else {
			failures = 0
		}

		if !sleep(ctx, wait) {
			return nil
		}
	}
}

func (p *Poller) step(ctx context.Context) error {
	temp, err := p.sensor.Read()
	if err != nil {
		return err
	}

	target := policy.Decide(temp, p.cfg.Thresholds, p.current)

	if delay := policy.Cooldown(target, p.current, p.cfg.CooldownDelay); delay > 0 {
		logger.Debug().
			Int("temperature", temp).
			Uint8("current_speed", p.current).
			Uint8("target_speed", target).
			Dur("delay", delay).
			Msg("Holding fan speed before slowing down")
		if !sleep(ctx, delay) {
			return nil
		}
	}

	if target == p.current {
		logger.Debug().Int("temperature", temp).Msg("Fan speed unchanged")
		return nil
	}

	if err := p.sender.Send(ctx, message.SetFan{Speed: target}); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	logger.Debug().
		Int("temperature", temp).
		Uint8("from", p.current).
		Uint8("to", target).
		Msg("Requested fan speed change")
	p.current = target

	return nil
}

func (p *Poller) backoff(failures int) time.Duration {
	wait := p.cfg.PollInterval
	for i := 1; i < failures && wait < p.cfg.MaxBackoff; i++ {
		wait *= 2
	}

	return min(wait, p.cfg.MaxBackoff)
}

// sleep waits for d and reports false if ctx was canceled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
