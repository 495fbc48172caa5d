// Package audit keeps an optional sqlite history of fan speed changes.
package audit

import (
	"context"

	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/logger"
)

type service struct {
	repo Repository
}

// No-op implementation
type noopRecorder struct{}

func NewService(cfg Config) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Audit disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, logger.Global())
	if err != nil {
		return nil, err
	}

	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, entry *Entry) error {
	errFactory := errors.New()

	if entry == nil {
		return errFactory.New(ErrInvalidEntry)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationCanceled, ctx.Err())
	default:
		if err := s.repo.Record(entry); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (*noopRecorder) Record(_ context.Context, _ *Entry) error {
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
