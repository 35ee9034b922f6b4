package cache

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// Store is a flat persistent key-value mirror for cached results and other
// engine state. Implementations must tolerate concurrent calls.
type Store interface {
	// Put writes value under key, replacing any previous value.
	Put(key, value []byte) error
	// Get returns the value stored under key, and whether one was found.
	Get(key []byte) ([]byte, bool, error)
	// DeletePrefix removes every key that starts with prefix.
	DeletePrefix(prefix []byte) error
	// Stop releases the store. No other method may be called afterwards.
	Stop() error
}

var bucketName = []byte("state")

// BoltStore persists key-value state in a single boltdb file.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens the database file at path, creating it if needed.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating bucket")
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(key, value []byte) error {
	return s.db.Batch(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

func (s *BoltStore) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v == nil {
			return nil
		}
		// The slice is only valid inside the transaction.
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *BoltStore) DeletePrefix(prefix []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Stop() error {
	return s.db.Close()
}
