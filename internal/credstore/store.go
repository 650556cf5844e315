// ABOUTME: Store interface and composite-key helpers for session credential persistence
// ABOUTME: Defines the backend-agnostic contract shared by the file and SQLite backends

package credstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested blob does not exist
var ErrNotFound = errors.New("not found")

// Store persists opaque credential blobs addressed by a composite key of
// category and id. Writes are idempotent upserts; operations on distinct keys
// may run concurrently, operations on the same key are serialized by the
// backend so the last write wins without lost updates.
type Store interface {
	// GetBlob returns the blob for the composite key, or ErrNotFound.
	GetBlob(ctx context.Context, category, id string) ([]byte, error)

	// PutBlob stores the blob under the composite key, replacing any prior value.
	PutBlob(ctx context.Context, category, id string, blob []byte) error

	// DeleteBlob removes the blob for the composite key. Deleting a missing
	// key is not an error.
	DeleteBlob(ctx context.Context, category, id string) error

	// Close releases backend resources.
	Close() error
}

// CompositeKey joins a category and id into the single key both backends
// address storage by.
func CompositeKey(category, id string) string {
	return category + ":" + id
}

// Open selects a backend from configuration: a non-empty DSN means SQLite,
// otherwise one file per key under dir.
func Open(dsn, dir, sessionID string) (Store, error) {
	if dsn != "" {
		s, err := NewSQLiteStore(dsn, sessionID)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite credential store: %w", err)
		}
		return s, nil
	}

	s, err := NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening file credential store: %w", err)
	}
	return s, nil
}
