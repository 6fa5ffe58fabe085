package telemetry

import (
	"database/sql"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS events (
	       id         TEXT NOT NULL,
	       timestamp  INTEGER NOT NULL,
	       type       TEXT NOT NULL,
	       subtype    TEXT,
	       severity   TEXT NOT NULL,
	       source     TEXT NOT NULL,
	       message    TEXT,
	       data       TEXT
	   );
	   CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);`

	insertEventSQL = `
    INSERT INTO events (
        id, timestamp, type, subtype, severity, source, message, data
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates the event tables and records the schema version.
func InitSchema(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	return nil
}
