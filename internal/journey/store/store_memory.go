package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"onboarding/internal/journey/models"
)

// InMemory keeps journeys in a map. Values are cloned on the way in and out
// so callers never share state with the store.
type InMemory struct {
	mu       sync.RWMutex
	journeys map[uuid.UUID]*models.Journey
}

func NewInMemory() *InMemory {
	return &InMemory{journeys: make(map[uuid.UUID]*models.Journey)}
}

// CreateIfAbsent stores j unless the user already has a journey, in which
// case the existing one is returned with created=false.
func (s *InMemory) CreateIfAbsent(_ context.Context, j *models.Journey) (*models.Journey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.journeys[j.UserID]; ok {
		return existing.Clone(), false, nil
	}
	s.journeys[j.UserID] = j.Clone()
	return j.Clone(), true, nil
}

func (s *InMemory) FindByUser(_ context.Context, userID uuid.UUID) (*models.Journey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.journeys[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// Update replaces the stored journey if its version still equals expectedVersion.
func (s *InMemory) Update(_ context.Context, j *models.Journey, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.journeys[j.UserID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	s.journeys[j.UserID] = j.Clone()
	return nil
}

// Delete drops a journey. Used by the CLI reset command and tests.
func (s *InMemory) Delete(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.journeys[userID]; !ok {
		return ErrNotFound
	}
	delete(s.journeys, userID)
	return nil
}
