package telemetry

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteRepository struct {
	db            *sql.DB
	cfg           Config
	mu            sync.Mutex
	buffer        []*event.SystemEvent
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// NewRepository opens the event database, ensures the schema, and
// starts the background flusher.
func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Telemetry repository initialized")

	repo := &sqliteRepository{
		db:            db,
		cfg:           cfg,
		buffer:        make([]*event.SystemEvent, 0, cfg.BatchSize),
		flushTicker:   time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	go repo.flusher()

	return repo, nil
}

func (r *sqliteRepository) Store(ev *event.SystemEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, ev)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	errFactory := errors.New()

	close(r.shutdownChan)
	r.flushTicker.Stop()
	<-r.flushDoneChan

	// Checkpoint WAL on close so the database is a single file at rest
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	logger.Debug().Msg("Telemetry repository closed")

	return nil
}

func (r *sqliteRepository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Debug().Err(err).Msg("Periodic telemetry flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Debug().Err(err).Msg("Final telemetry flush failed")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffered events in one transaction. Callers hold r.mu.
func (r *sqliteRepository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertEventSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Debug().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, ev := range r.buffer {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Debug().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrEncodeFailed, err)
		}

		if _, err := stmt.Exec(
			ev.ID,
			ev.Timestamp.Unix(),
			string(ev.Type),
			ev.Subtype,
			string(ev.Severity),
			ev.Source,
			ev.Message,
			string(data),
		); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Debug().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	logger.Debug().Int("records", len(r.buffer)).Msg("Flushed events to database")
	r.buffer = r.buffer[:0]

	return nil
}
