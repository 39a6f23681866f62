package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Write is one entry of an atomic batch. A nil Value deletes Key.
type Write struct {
	Key   []byte
	Value []byte
}

// Database is the key-value backend behind the snapshot store.
type Database interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// Apply commits every write or none of them.
	Apply(writes []Write) error
	Close()
}

// MemDB keeps everything in a map. Used by tests and by the service when no
// data directory is configured.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Put(key, value []byte) error {
	return db.Apply([]Write{{Key: key, Value: value}})
}

func (db *MemDB) Delete(key []byte) error {
	return db.Apply([]Write{{Key: key}})
}

func (db *MemDB) Apply(writes []Write) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, w := range writes {
		if w.Value == nil {
			delete(db.data, string(w.Key))
			continue
		}
		db.data[string(w.Key)] = append([]byte(nil), w.Value...)
	}
	return nil
}

func (db *MemDB) Close() {}

// LevelDB is the on-disk backend.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) Apply(writes []Write) error {
	batch := new(leveldb.Batch)
	for _, w := range writes {
		if w.Value == nil {
			batch.Delete(w.Key)
		} else {
			batch.Put(w.Key, w.Value)
		}
	}
	return l.db.Write(batch, nil)
}

func (l *LevelDB) Close() {
	_ = l.db.Close()
}
