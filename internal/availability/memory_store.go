package availability

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

type windowKey struct {
	doctorID string
	day      schedule.Weekday
}

// MemoryStore is an in-process Store for tests and database-less runs.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[windowKey]schedule.Window
	blocks  map[string]schedule.Block
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[windowKey]schedule.Window),
		blocks:  make(map[string]schedule.Block),
	}
}

func (s *MemoryStore) Windows(_ context.Context, doctorID string) ([]schedule.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schedule.Window
	for k, w := range s.windows {
		if k.doctorID == doctorID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (s *MemoryStore) UpsertWindow(_ context.Context, w schedule.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[windowKey{doctorID: w.DoctorID, day: w.DayOfWeek}] = w
	return nil
}

func (s *MemoryStore) Blocks(_ context.Context, doctorID string, from schedule.Date) ([]schedule.Block, error) {
	return s.filterBlocks(func(b schedule.Block) bool {
		return b.DoctorID == doctorID && !b.Date.Before(from)
	}), nil
}

func (s *MemoryStore) BlocksOn(_ context.Context, doctorID string, date schedule.Date) ([]schedule.Block, error) {
	return s.filterBlocks(func(b schedule.Block) bool {
		return b.DoctorID == doctorID && b.Date == date
	}), nil
}

func (s *MemoryStore) AddBlock(_ context.Context, b *schedule.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.blocks[b.ID] = *b
	return nil
}

func (s *MemoryStore) DeleteBlock(_ context.Context, doctorID, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok || b.DoctorID != doctorID {
		return ErrBlockNotFound
	}
	delete(s.blocks, blockID)
	return nil
}

func (s *MemoryStore) filterBlocks(keep func(schedule.Block) bool) []schedule.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schedule.Block
	for _, b := range s.blocks {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
