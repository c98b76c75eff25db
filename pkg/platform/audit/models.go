package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory weight: what the
	// applicant submitted and what an admin decided about it.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine progress through the journey.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    uuid.UUID     `json:"user_id"`
	// Subject is the journey state the action applied to.
	Subject  string `json:"subject"`
	Action   string `json:"action"`
	Persona  string `json:"persona,omitempty"`
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	// Label names an attached document.
	Label string `json:"label,omitempty"`
	// RequestID correlates the event with the HTTP request or Kafka record.
	RequestID string `json:"request_id,omitempty"`
	// ActorID is set when someone other than the applicant acted, e.g. an admin.
	ActorID string `json:"actor_id,omitempty"`
	Device  string `json:"device,omitempty"`
	Version int64  `json:"version,omitempty"`
}

type AuditEvent string

const (
	EventJourneyEnsured     AuditEvent = "journey_ensured"
	EventJourneyStarted     AuditEvent = "journey_started"
	EventStepSaved          AuditEvent = "step_saved"
	EventDocumentAttached   AuditEvent = "document_attached"
	EventJourneySubmitted   AuditEvent = "journey_submitted"
	EventDecisionRecorded   AuditEvent = "decision_recorded"
	EventJourneyResubmitted AuditEvent = "journey_resubmitted"
	EventDirectorySyncFail  AuditEvent = "directory_sync_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventJourneySubmitted:   CategoryCompliance,
	EventDecisionRecorded:   CategoryCompliance,
	EventJourneyResubmitted: CategoryCompliance,
	EventDocumentAttached:   CategoryCompliance,

	EventJourneyEnsured:    CategoryOperations,
	EventJourneyStarted:    CategoryOperations,
	EventStepSaved:         CategoryOperations,
	EventDirectorySyncFail: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Event, error)
}
