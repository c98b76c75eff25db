package service

import (
	"context"

	"onboarding/internal/journey/models"
	"onboarding/pkg/attrs"
	"onboarding/pkg/platform/audit"
	"onboarding/pkg/requestcontext"
)

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, j *models.Journey, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	device := requestcontext.Device(ctx)
	args := append(attributes,
		"user_id", j.UserID.String(),
		"state_value", j.StateValue,
		"version", j.Version,
		"event", string(event),
		"log_type", "audit",
	)
	if requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		UserID:    j.UserID,
		Subject:   j.StateValue,
		Action:    string(event),
		Persona:   string(j.Persona),
		Decision:  attrs.ExtractString(attributes, "decision"),
		Reason:    attrs.ExtractString(attributes, "reason"),
		Label:     attrs.ExtractString(attributes, "label"),
		ActorID:   attrs.ExtractString(attributes, "actor_id"),
		RequestID: requestID,
		Device:    device,
		Version:   j.Version,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"event", string(event),
			"error", err,
		)
	}
}
