package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	audit "onboarding/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[uuid.UUID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[uuid.UUID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.UserID] = append(s.events[event.UserID], event)
	return nil
}

// ListByUser returns userID's events in append order.
func (s *InMemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[userID]...), nil
}
