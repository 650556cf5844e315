// ABOUTME: SQLite implementation of the credential Store using modernc.org/sqlite
// ABOUTME: One pooled long-lived connection, composite keys as rows, schema created on open

package credstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a credentials table keyed by session id and
// composite key. Blob values are base64-wrapped so arbitrary bytes survive the
// TEXT column.
type SQLiteStore struct {
	db        *sql.DB
	sessionID string
	logger    *slog.Logger
}

// NewSQLiteStore opens (or creates) the credentials database at the given DSN.
// The connection pool is long-lived; callers must Close when done.
func NewSQLiteStore(dsn, sessionID string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "credstore")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		sessionID: sessionID,
		logger:    logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite credential store initialized", "dsn", dsn, "session_id", sessionID)
	return s, nil
}

// createSchema creates the credentials table if it doesn't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			session_id TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, key)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// GetBlob returns the blob stored under the composite key.
func (s *SQLiteStore) GetBlob(ctx context.Context, category, id string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE session_id = ? AND key = ?`,
		s.sessionID, CompositeKey(category, id),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", CompositeKey(category, id), err)
	}

	blob, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", CompositeKey(category, id), err)
	}
	return blob, nil
}

// PutBlob upserts the blob under the composite key. The row-level upsert
// serializes concurrent writes to the same key; last write wins.
func (s *SQLiteStore) PutBlob(ctx context.Context, category, id string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (session_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		s.sessionID, CompositeKey(category, id),
		base64.StdEncoding.EncodeToString(blob), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", CompositeKey(category, id), err)
	}
	return nil
}

// DeleteBlob removes the row for the composite key, ignoring absence.
func (s *SQLiteStore) DeleteBlob(ctx context.Context, category, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE session_id = ? AND key = ?`,
		s.sessionID, CompositeKey(category, id),
	)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", CompositeKey(category, id), err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
