package passage

import (
	"context"
	"math/rand"
	"sync"
)

// MemoryService is the in-memory catalog backend for single-binary
// deployment. It can be swapped to persistent storage without changing
// gateway contracts.
type MemoryService struct {
	mu       sync.RWMutex
	passages map[int]Passage
	indexes  []int
}

func NewMemoryService() *MemoryService {
	s := &MemoryService{passages: make(map[int]Passage)}
	for i, text := range seedPassages {
		s.passages[i] = Passage{Index: i, Text: text}
		s.indexes = append(s.indexes, i)
	}
	return s
}

func (s *MemoryService) Get(_ context.Context, index int) (Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.passages[index]
	if !ok {
		return Passage{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryService) Random(_ context.Context) (Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.indexes) == 0 {
		return Passage{}, ErrNotFound
	}
	return s.passages[s.indexes[rand.Intn(len(s.indexes))]], nil
}

func (s *MemoryService) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages), nil
}

// Put adds or replaces a catalog entry.
func (s *MemoryService) Put(p Passage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.passages[p.Index]; !exists {
		s.indexes = append(s.indexes, p.Index)
	}
	s.passages[p.Index] = p
}

func (s *MemoryService) Close() error { return nil }
