package results

import (
	"context"
	"sync"

	"passage-race/internal/race"
)

const defaultMemoryCapacity = 256

// MemoryService keeps the most recent records in a bounded in-memory
// list, newest first.
type MemoryService struct {
	mu       sync.Mutex
	records  []race.RaceRecord
	capacity int
}

func NewMemoryService() *MemoryService {
	return &MemoryService{capacity: defaultMemoryCapacity}
}

func (s *MemoryService) Append(_ context.Context, record race.RaceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append([]race.RaceRecord{record}, s.records...)
	if len(s.records) > s.capacity {
		s.records = s.records[:s.capacity]
	}
	return nil
}

func (s *MemoryService) Recent(_ context.Context, limit int) ([]race.RaceRecord, error) {
	limit = clampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]race.RaceRecord, limit)
	copy(out, s.records[:limit])
	return out, nil
}

func (s *MemoryService) Close() error { return nil }
