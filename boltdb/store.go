// Package boltdb provides an edk.ResultStore implementation persisting each
// entity's widgets data in boltdb, one bucket per group, JSON-encoded so
// export collaborators can read results without this package.
package boltdb

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var widgetsBucket = []byte("widgets")

// Store persists per-entity result mappings. Safe for concurrent Persist
// calls from entity workers.
type Store struct {
	Db *bolt.DB
}

// NewStore opens (or creates) the store at filename.
func NewStore(filename string) (*Store, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	db.MaxBatchDelay = 400 * time.Microsecond
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(widgetsBucket)
		return errors.Wrap(err, "creating widgets bucket")
	})
	if err != nil {
		return nil, err
	}
	return &Store{Db: db}, nil
}

// Persist implements edk.ResultStore. A later Persist for the same
// (group, entityID) replaces the whole mapping; values are never patched.
func (s *Store) Persist(group, entityID string, values map[string]interface{}) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errors.Wrapf(err, "encoding values for '%s'", entityID)
	}
	err = s.Db.Batch(func(tx *bolt.Tx) error {
		gb, err := tx.Bucket(widgetsBucket).CreateBucketIfNotExists([]byte(group))
		if err != nil {
			return errors.Wrapf(err, "creating bucket for group '%s'", group)
		}
		return gb.Put([]byte(entityID), data)
	})
	return errors.Wrapf(err, "persisting entity '%s'", entityID)
}

// Get returns the persisted mapping for one entity.
func (s *Store) Get(group, entityID string) (map[string]interface{}, error) {
	var data []byte
	err := s.Db.View(func(tx *bolt.Tx) error {
		gb := tx.Bucket(widgetsBucket).Bucket([]byte(group))
		if gb == nil {
			return errors.Errorf("no results for group '%s'", group)
		}
		v := gb.Get([]byte(entityID))
		if v == nil {
			return errors.Errorf("no results for entity '%s'", entityID)
		}
		data = append(data, v...) // copy out of the tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{})
	err = json.Unmarshal(data, &values)
	return values, errors.Wrapf(err, "decoding values for '%s'", entityID)
}

// EntityIDs returns the ids persisted for a group, in key order.
func (s *Store) EntityIDs(group string) ([]string, error) {
	ids := make([]string, 0)
	err := s.Db.View(func(tx *bolt.Tx) error {
		gb := tx.Bucket(widgetsBucket).Bucket([]byte(group))
		if gb == nil {
			return nil
		}
		return gb.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// Close syncs and closes the underlying boltdb.
func (s *Store) Close() error {
	if err := s.Db.Sync(); err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return s.Db.Close()
}
