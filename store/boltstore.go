package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

// BoltStore is an embedded, on-disk SessionStore, grounded on the same
// bbolt-bucket shape the rest of the pack uses for local key/value
// persistence — one bucket, plain Put/Get/Delete, no encryption layer
// of its own: the blob, which holds the session's private keys and chain
// keys, is written as given (wrap the store in a SealedStore to encrypt it).
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt database at path and
// ensures the sessions bucket exists.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Save(_ context.Context, sessionID string, data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(sessionID), data)
	})
}

func (b *BoltStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(sessionID))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltStore) Delete(_ context.Context, sessionID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(sessionID))
	})
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
