// Package store persists a market slab to a local LevelDB database, for
// the percolatorctl CLI to carry state between invocations (there is no
// chain runtime in this module to hold the account in place).
package store

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"percolator/internal/slab"
)

const slabKey = "slab"

// Database is the narrow key-value interface the store needs, matching the
// shape a real chain-runtime account store and a local LevelDB instance
// both satisfy.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Close() error
}

// LevelDB is a persistent key-value store backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// Open creates or opens a LevelDB database at path.
func Open(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Put(key, value []byte) error { return l.db.Put(key, value, nil) }
func (l *LevelDB) Get(key []byte) ([]byte, error) { return l.db.Get(key, nil) }
func (l *LevelDB) Close() error { return l.db.Close() }

// SaveSlab serializes and writes the slab under a fixed key.
func SaveSlab(db Database, s *slab.Slab) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("store: encode slab: %w", err)
	}
	return db.Put([]byte(slabKey), buf.Bytes())
}

// LoadSlab reads and deserializes the slab, returning the database's Get
// error unchanged (leveldb.ErrNotFound for LevelDB) if none has been saved
// yet.
func LoadSlab(db Database) (*slab.Slab, error) {
	raw, err := db.Get([]byte(slabKey))
	if err != nil {
		return nil, err
	}
	s := &slab.Slab{}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(s); err != nil {
		return nil, fmt.Errorf("store: decode slab: %w", err)
	}
	return s, nil
}
