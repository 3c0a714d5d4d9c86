package storage

import "sync"

// MemDB keeps records in a map. Used by tests and the memory backend.
type MemDB struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{records: make(map[string][]byte)}
}

func (m *MemDB) Put(key []byte, value []byte) error {
	stored := append([]byte(nil), value...)
	m.mu.Lock()
	m.records[string(key)] = stored
	m.mu.Unlock()
	return nil
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	stored, ok := m.records[string(key)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), stored...), nil
}

func (m *MemDB) Close() {}
