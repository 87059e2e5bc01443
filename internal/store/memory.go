package store

import (
	"sort"
	"strings"
)

// MemoryDB implements DB (and Batcher) over an in-memory map. Used by tests.
// It takes no locks, so a read that runs concurrently with a write is not
// safe.
type MemoryDB struct {
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (m *MemoryDB) Put(key, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemoryDB) Delete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

func (m *MemoryDB) Has(key []byte) (bool, error) {
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), m.data[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDB) Close() error {
	return nil
}

// NewBatch returns a batch that buffers writes and applies them to m on
// Commit, in the order they were made. Commit takes no lock, so a reader
// in another goroutine could observe a partly applied batch.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

type memoryOp struct {
	key     []byte
	value   []byte
	deleted bool // true for a Delete; value is then unused
}

type memoryBatch struct {
	db  *MemoryDB
	ops []memoryOp
}

func (mb *memoryBatch) Put(key, value []byte) error {
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	mb.ops = append(mb.ops, memoryOp{key: k, value: v})
	return nil
}

func (mb *memoryBatch) Delete(key []byte) error {
	k := make([]byte, len(key))
	copy(k, key)
	mb.ops = append(mb.ops, memoryOp{key: k, deleted: true})
	return nil
}

func (mb *memoryBatch) Commit() error {
	for _, op := range mb.ops {
		if op.deleted {
			mb.db.data[string(op.key)] = nil
			delete(mb.db.data, string(op.key))
			continue
		}
		mb.db.data[string(op.key)] = op.value
	}
	return nil
}
