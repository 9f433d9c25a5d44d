// Package blobs is a small pebble-backed blob store. Compaction offloads
// oversized debug payloads here, replacing them in the log with a
// reference id.
package blobs

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"branchdb/pkg/logger"
	"branchdb/pkg/utils"
)

const keyPrefix = "blob:"

type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the blob database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("blob_store_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	logger.Info("blob_store_opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put stores data under a fresh id and returns the id.
func (s *Store) Put(data []byte) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("blob store closed")
	}
	id := utils.GenBlobID()
	if err := s.db.Set([]byte(keyPrefix+id), data, pebble.Sync); err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	logger.Debug("blob_stored", "id", id, "bytes", len(data))
	return id, nil
}

// Get returns the payload for id, or an error when absent.
func (s *Store) Get(id string) ([]byte, error) {
	if s.db == nil {
		return nil, fmt.Errorf("blob store closed")
	}
	val, closer, err := s.db.Get([]byte(keyPrefix + id))
	if err == pebble.ErrNotFound {
		return nil, fmt.Errorf("blob %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}
