// Package registry owns the persisted catalog of sensitive patterns,
// user-defined entries and variants, and the inventory ledger of where
// sensitive data has been seen. It is the single source of truth the
// Pattern Scanner snapshots from and the Gateway Hook queries for
// posture input.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed handle on the registry schema. Concurrent
// readers are safe; writes that touch more than one table are wrapped in
// a transaction so a crash never leaves a partial write visible.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the registry database at path,
// applying the schema idempotently. Multiple Store values may open the
// same path concurrently — SQLite serializes writers internally and the
// driver is configured single-connection to avoid "database is locked"
// churn under the pack's pure-Go driver.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, newErr(KindStorageUnavailable, "open registry database", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, newErr(KindStorageUnavailable, "enable foreign keys", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, newErr(KindStorageUnavailable, "apply registry schema", err)
	}

	log.Info().Str("path", path).Msg("registry store opened")
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// classifyWriteErr maps a raw SQLite error into the registry's taxonomy
// based on the SQLite error text, since modernc.org/sqlite does not
// expose typed constraint errors the way lib/pq does for Postgres.
func classifyWriteErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "unique constraint"):
		return newErr(KindUniquenessViolation, msg, err)
	case strings.Contains(text, "foreign key constraint"):
		return newErr(KindForeignKeyViolation, msg, err)
	default:
		return newErr(KindStorageUnavailable, msg, err)
	}
}

// GetHealth returns pattern/entry/inventory counts and an "ok" predicate
// evaluated by executing a trivial read.
func (s *Store) GetHealth(ctx context.Context) (Health, error) {
	var h Health
	row := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM patterns),
		(SELECT COUNT(*) FROM user_entries),
		(SELECT COUNT(*) FROM inventory WHERE active = 1)`)
	if err := row.Scan(&h.PatternCount, &h.EntryCount, &h.ActiveInventoryCount); err != nil {
		return Health{}, newErr(KindStorageUnavailable, "health query", err)
	}
	if err := s.db.PingContext(ctx); err != nil {
		h.OK = false
		return h, nil
	}
	h.OK = true
	return h, nil
}

func wrapScan(err error, what string) error {
	return fmt.Errorf("registry: scan %s: %w", what, err)
}
