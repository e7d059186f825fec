package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/speak2fill/speak2fill/internal/form"
)

// MemoryStore implements Store with a mutex-guarded map. Intended for tests
// and single-process demos — no SQLite required.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
}

type memoryRecord struct {
	session *form.Session
	image   []byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

func (m *MemoryStore) Create(_ context.Context, s *form.Session, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[s.SessionID]; exists {
		return fmt.Errorf("session %s already exists", s.SessionID)
	}
	m.records[s.SessionID] = &memoryRecord{session: s.Clone(), image: image}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*form.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.session.Clone(), nil
}

// Update holds the store lock for the duration of the mutator. Mutators are
// computation-only (the engine never blocks inside one), so serializing them
// under a single lock is both correct and cheap.
func (m *MemoryStore) Update(_ context.Context, id string, mutate func(*form.Session) error) (*form.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := rec.session.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	rec.session = next
	return next.Clone(), nil
}

func (m *MemoryStore) GetImage(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.image, nil
}
