package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

// MemoryStore is an in-process Store. The conflict check and the write happen
// under one lock, so concurrent callers observe the same guarantee the
// Postgres index gives.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]Appointment
	slots map[SlotKey]uuid.UUID
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uuid.UUID]Appointment),
		slots: make(map[SlotKey]uuid.UUID),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Insert(_ context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status.Active() {
		if holder, ok := s.slots[a.Slot()]; ok && holder != a.ID {
			return ErrSlotConflict
		}
	}
	now := s.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.byID[a.ID] = *a
	if a.Status.Active() {
		s.slots[a.Slot()] = a.ID
	}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[a.ID]
	if !ok {
		return ErrNotFound
	}
	if a.Status.Active() {
		if holder, taken := s.slots[a.Slot()]; taken && holder != a.ID {
			return ErrSlotConflict
		}
	}
	if prev.Status.Active() {
		delete(s.slots, prev.Slot())
	}
	a.UpdatedAt = s.now()
	// Only mutable columns change; identity and provenance are fixed at insert.
	next := prev
	next.Date, next.Time = a.Date, a.Time
	next.Reason, next.Symptoms, next.Notes = a.Reason, a.Symptoms, a.Notes
	next.Status = a.Status
	next.UpdatedAt = a.UpdatedAt
	s.byID[a.ID] = next
	if next.Status.Active() {
		s.slots[next.Slot()] = next.ID
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	if holder, held := s.slots[a.Slot()]; held && holder == id {
		delete(s.slots, a.Slot())
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Appointment
	for _, a := range s.byID {
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.PatientID != "" && (a.PatientID == nil || *a.PatientID != f.PatientID) {
			continue
		}
		if f.Date != nil && a.Date != *f.Date {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[j].Date.Before(out[i].Date)
		}
		return out[i].Time > out[j].Time
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SlotTaken(_ context.Context, key SlotKey, exclude uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	holder, ok := s.slots[key]
	return ok && holder != exclude, nil
}

func (s *MemoryStore) BookedTimes(_ context.Context, doctorID string, date schedule.Date) ([]schedule.TimeOfDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schedule.TimeOfDay
	for key := range s.slots {
		if key.DoctorID == doctorID && key.Date == date {
			out = append(out, key.Time)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
