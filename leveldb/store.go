// Package leveldb persists built hierarchy trees in leveldb so runs can
// serve nested-set queries between rebuilds without rescanning the source
// table. A rebuild always replaces the whole tree; there is no incremental
// patching of nested-set numbering.
package leveldb

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ecodata/edk"
)

var (
	nodePrefix    = []byte("node:")
	naturalPrefix = []byte("nat:")
	levelsKey     = []byte("meta:levels")
)

// Store holds one persisted tree.
type Store struct {
	db *leveldb.DB
}

// NewStore opens (or creates) a tree store in dirname.
func NewStore(dirname string) (*Store, error) {
	db, err := leveldb.OpenFile(dirname, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return &Store{db: db}, nil
}

// PutTree replaces the persisted tree with t: nodes keyed by id, a natural
// id index, and the level sequence.
func (s *Store) PutTree(t *edk.Tree) error {
	batch := new(leveldb.Batch)
	for _, prefix := range [][]byte{nodePrefix, naturalPrefix} {
		iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
		for iter.Next() {
			batch.Delete(append([]byte{}, iter.Key()...))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return errors.Wrap(err, "scanning old tree")
		}
	}

	levels, err := json.Marshal(t.Levels())
	if err != nil {
		return errors.Wrap(err, "encoding levels")
	}
	batch.Put(levelsKey, levels)
	for _, n := range t.Nodes() {
		data, err := json.Marshal(n)
		if err != nil {
			return errors.Wrapf(err, "encoding node '%s'", n.Label)
		}
		batch.Put(append(nodePrefix, []byte(n.ID)...), data)
		if n.Natural != "" {
			batch.Put(append(naturalPrefix, []byte(n.Natural)...), []byte(n.ID))
		}
	}
	return errors.Wrap(s.db.Write(batch, nil), "writing tree")
}

// LoadTree reconstitutes the persisted tree, re-validating the nested-set
// invariants on the way in.
func (s *Store) LoadTree() (*edk.Tree, error) {
	data, err := s.db.Get(levelsKey, nil)
	if err != nil {
		return nil, errors.Wrap(err, "no tree persisted")
	}
	var levels []edk.Level
	if err := json.Unmarshal(data, &levels); err != nil {
		return nil, errors.Wrap(err, "decoding levels")
	}

	nodes := make([]*edk.Node, 0)
	iter := s.db.NewIterator(util.BytesPrefix(nodePrefix), nil)
	for iter.Next() {
		n := &edk.Node{}
		if err := json.Unmarshal(iter.Value(), n); err != nil {
			iter.Release()
			return nil, errors.Wrapf(err, "decoding node '%s'", iter.Key())
		}
		nodes = append(nodes, n)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "scanning nodes")
	}
	return edk.NewTree(levels, nodes)
}

// NodeIDByNatural resolves a natural entity id (e.g. a source table's
// id_taxon value) to the hash-derived node id.
func (s *Store) NodeIDByNatural(natural string) (string, error) {
	v, err := s.db.Get(append(naturalPrefix, []byte(natural)...), nil)
	if err != nil {
		return "", errors.Wrapf(err, "no node for natural id '%s'", natural)
	}
	return string(v), nil
}

// Close closes the underlying leveldb.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "closing tree store")
}
