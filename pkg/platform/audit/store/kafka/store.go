package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	audit "onboarding/pkg/platform/audit"
)

// Producer is the slice of the Kafka producer the audit sink needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Store appends to an inner store and then publishes the event to a topic
// keyed by user, so downstream consumers see per-user order. Reads are
// served by the inner store.
type Store struct {
	inner    audit.Store
	producer Producer
	topic    string
}

func New(inner audit.Store, producer Producer, topic string) *Store {
	return &Store{inner: inner, producer: producer, topic: topic}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if err := s.inner.Append(ctx, event); err != nil {
		return err
	}
	event.Category = audit.AuditEvent(event.Action).Category()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(event.UserID.String()), payload); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]audit.Event, error) {
	return s.inner.ListByUser(ctx, userID)
}
