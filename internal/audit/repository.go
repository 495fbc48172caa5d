package audit

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*Entry
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL")
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := ValidateAndUpdateSchema(db, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Audit repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*Entry, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	// Periodic flushing only matters when entries are batched
	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, entry)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.close()
	})

	return err
}

func (r *repository) close() error {
	errFactory := errors.New()

	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	r.logger.Debug().Msg("Audit repository closed")

	return flushErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Error().Err(err).Msg("Periodic audit flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes buffered entries in one transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertChangeSQL)
	if err != nil {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, entry := range r.buffer {
		if _, err := stmt.Exec(entry.Timestamp.UnixNano(), int64(entry.Speed), int64(entry.PreviousSpeed)); err != nil {
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed audit entries")
	r.buffer = r.buffer[:0]

	return nil
}
