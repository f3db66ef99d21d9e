package compensation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps structures in process. Used by tests and local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	structures map[string]Structure
}

func NewMemoryStore(seed ...Structure) *MemoryStore {
	m := &MemoryStore{structures: make(map[string]Structure)}
	for _, s := range seed {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		m.structures[s.ID] = s
	}
	return m
}

func (m *MemoryStore) ListStructures(ctx context.Context) ([]Structure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Structure, 0, len(m.structures))
	for _, s := range m.structures {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, s Structure) (string, error) {
	if err := Validate(s); err != nil {
		return "", err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structures[s.ID] = s
	return s.ID, nil
}
