// ABOUTME: File-backed credential store with one file per composite key
// ABOUTME: Mirrors the multi-file auth directory layout used by single-box deployments

package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore implements Store with one file per composite key under a session
// directory. Absence of the file means the key is absent.
type FileStore struct {
	dir    string
	logger *slog.Logger

	// mu guards the per-key locks map; keyLocks serialize same-key writes
	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	return &FileStore{
		dir:      dir,
		logger:   slog.Default().With("component", "credstore"),
		keyLocks: make(map[string]*sync.Mutex),
	}, nil
}

// lockKey returns the mutex serializing operations for one composite key.
func (s *FileStore) lockKey(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	return l
}

// fileName maps a composite key to a filesystem-safe file name.
// The separator and any path-hostile runes are replaced so keys like
// "app-state-sync-key:AAAAAA/x" stay within the session directory.
func fileName(category, id string) string {
	key := CompositeKey(category, id)
	replacer := strings.NewReplacer(":", "-", "/", "_", "\\", "_", "..", "_")
	return replacer.Replace(key) + ".json"
}

// GetBlob reads the file for the composite key.
func (s *FileStore) GetBlob(ctx context.Context, category, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := s.lockKey(CompositeKey(category, id))
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, fileName(category, id)))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", CompositeKey(category, id), err)
	}
	return data, nil
}

// PutBlob writes the blob to a temp file and renames it into place so a
// concurrent reader never observes a partial write.
func (s *FileStore) PutBlob(ctx context.Context, category, id string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lockKey(CompositeKey(category, id))
	l.Lock()
	defer l.Unlock()

	target := filepath.Join(s.dir, fileName(category, id))
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", CompositeKey(category, id), err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("committing %s: %w", CompositeKey(category, id), err)
	}
	return nil
}

// DeleteBlob removes the file for the composite key, ignoring absence.
func (s *FileStore) DeleteBlob(ctx context.Context, category, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lockKey(CompositeKey(category, id))
	l.Lock()
	defer l.Unlock()

	err := os.Remove(filepath.Join(s.dir, fileName(category, id)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", CompositeKey(category, id), err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}
