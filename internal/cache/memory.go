package cache

import (
	"context"
	"sync"

	"github.com/bobarin/imagetiming/internal/models"
)

// MemoryStore keeps allocations for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]models.Assignment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]models.Assignment)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]models.Assignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.entries[key]
	return cloneAssignments(a), ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, assignments []models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cloneAssignments(assignments)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]models.Assignment)
	return nil
}

// Len reports the number of cached sections.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
