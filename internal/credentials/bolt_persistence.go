package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	boltDirPerm     = fs.FileMode(0o700)
	boltFilePerm    = fs.FileMode(0o600)
	boltOpenTimeout = 5 * time.Second
)

var credentialsBucket = []byte("credentials")

// BoltPersistence stores the credential pair in a local bbolt file, one key
// per client profile slot.
type BoltPersistence struct {
	db   *bolt.DB
	slot []byte
}

// NewBoltPersistence opens (or creates) the bbolt file at path.
func NewBoltPersistence(path string, slot string) (*BoltPersistence, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("credentials.bolt.open: %w", errEmptyBoltPath)
	}
	if strings.TrimSpace(slot) == "" {
		return nil, fmt.Errorf("credentials.bolt.open: %w", errEmptySlot)
	}
	if err := os.MkdirAll(filepath.Dir(path), boltDirPerm); err != nil {
		return nil, fmt.Errorf("credentials.bolt.mkdir: %w", err)
	}
	db, err := bolt.Open(path, boltFilePerm, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("credentials.bolt.open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists(credentialsBucket)
		return bucketErr
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credentials.bolt.init: %w", err)
	}
	return &BoltPersistence{db: db, slot: []byte(slot)}, nil
}

// Close releases the file lock.
func (persistence *BoltPersistence) Close() error {
	return persistence.db.Close()
}

// Save writes the pair as JSON under the slot key.
func (persistence *BoltPersistence) Save(ctx context.Context, pair TokenPair) error {
	encoded, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("credentials.bolt.encode: %w", err)
	}
	err = persistence.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put(persistence.slot, encoded)
	})
	if err != nil {
		return fmt.Errorf("credentials.bolt.save: %w", err)
	}
	return nil
}

// Load reads the pair stored under the slot key.
func (persistence *BoltPersistence) Load(ctx context.Context) (TokenPair, bool, error) {
	var pair TokenPair
	found := false
	err := persistence.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(credentialsBucket).Get(persistence.slot)
		if value == nil {
			return nil
		}
		found = true
		return json.Unmarshal(value, &pair)
	})
	if err != nil {
		return TokenPair{}, false, fmt.Errorf("credentials.bolt.load: %w", err)
	}
	return pair, found, nil
}

// Clear deletes the slot key.
func (persistence *BoltPersistence) Clear(ctx context.Context) error {
	err := persistence.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete(persistence.slot)
	})
	if err != nil {
		return fmt.Errorf("credentials.bolt.clear: %w", err)
	}
	return nil
}
