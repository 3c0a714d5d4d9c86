package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB stores records in a goleveldb directory.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens, or creates, the LevelDB directory at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Put(key []byte, value []byte) error {
	return l.db.Put(key, value, nil)
}

// Get maps leveldb.ErrNotFound onto ErrNotFound.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := l.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("storage: leveldb get: %w", err)
	}
	return value, nil
}

func (l *LevelDB) Close() {
	_ = l.db.Close()
}
