// Package events publishes journey change events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/journey/models"
)

const TypeJourneyChanged = "journey.changed"

// ChangeEvent is the record written to the journey events topic. The full
// document rides along so consumers never read back from the service.
type ChangeEvent struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	UserID     uuid.UUID       `json:"user_id"`
	Version    int64           `json:"version"`
	Persona    models.Persona  `json:"persona"`
	Status     models.Status   `json:"status"`
	StateValue string          `json:"state_value"`
	OccurredAt time.Time       `json:"occurred_at"`
	Journey    *models.Journey `json:"journey"`
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaPublisher writes change events keyed by user id, so every consumer
// sees one user's versions in order.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, j *models.Journey) error {
	payload, err := json.Marshal(ChangeEvent{
		ID:         uuid.New(),
		Type:       TypeJourneyChanged,
		UserID:     j.UserID,
		Version:    j.Version,
		Persona:    j.Persona,
		Status:     j.Status,
		StateValue: j.StateValue,
		OccurredAt: j.LastTouchedAt,
		Journey:    j,
	})
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return p.producer.Publish(ctx, p.topic, []byte(j.UserID.String()), payload)
}
