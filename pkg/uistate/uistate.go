// Package uistate is the per-user UI-state collaborator store: shared and
// per-user state blobs, branch-read tracking, and a monotonic branch
// counter keyed by conversation. The core consumes it only for counter
// backfill and read-state queries; it never mutates the branch tree.
package uistate

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"branchdb/pkg/logger"
)

var (
	bucketShared   = []byte("shared")
	bucketUsers    = []byte("users")
	bucketReads    = []byte("reads")
	bucketCounters = []byte("counters")
)

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the UI-state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open uistate store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketShared, bucketUsers, bucketReads, bucketCounters} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("uistate_store_opened", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveShared stores the shared UI-state blob for a conversation.
func (s *Store) SaveShared(convID string, state []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShared).Put([]byte(convID), state)
	})
}

// LoadShared returns the shared UI-state blob, or nil when absent.
func (s *Store) LoadShared(convID string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketShared).Get([]byte(convID)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func userKey(userID, convID string) []byte {
	return []byte(userID + "\x00" + convID)
}

// SaveUser stores a user's UI-state blob for a conversation (active branch
// per user, read markers and the like).
func (s *Store) SaveUser(userID, convID string, state []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).Put(userKey(userID, convID), state)
	})
}

// LoadUser returns a user's UI-state blob, or nil when absent.
func (s *Store) LoadUser(userID, convID string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketUsers).Get(userKey(userID, convID)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// MarkBranchRead records that a user has seen a branch.
func (s *Store) MarkBranchRead(userID, branchID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReads).Put(userKey(userID, branchID), []byte{1})
	})
}

// IsBranchRead reports whether a user has seen a branch.
func (s *Store) IsBranchRead(userID, branchID string) (bool, error) {
	var seen bool
	err := s.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(bucketReads).Get(userKey(userID, branchID)) != nil
		return nil
	})
	return seen, err
}

// NextBranchSeq increments and returns the monotonic branch counter for a
// conversation.
func (s *Store) NextBranchSeq(convID string) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		seq = getSeq(b, convID) + 1
		return putSeq(b, convID, seq)
	})
	return seq, err
}

// CurrentBranchSeq returns the counter without incrementing.
func (s *Store) CurrentBranchSeq(convID string) (uint64, error) {
	var seq uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		seq = getSeq(tx.Bucket(bucketCounters), convID)
		return nil
	})
	return seq, err
}

// BackfillBranchSeq raises the counter to at least floor, never lowering
// it. The core calls this after replay so the counter catches up with a
// log that advanced while the collaborator store was offline.
func (s *Store) BackfillBranchSeq(convID string, floor uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		if getSeq(b, convID) >= floor {
			return nil
		}
		return putSeq(b, convID, floor)
	})
}

func getSeq(b *bolt.Bucket, convID string) uint64 {
	v := b.Get([]byte(convID))
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func putSeq(b *bolt.Bucket, convID string, seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return b.Put([]byte(convID), buf[:])
}
