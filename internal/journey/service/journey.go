package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/journey/models"
	"onboarding/internal/journey/steps"
	"onboarding/internal/journey/store"
	"onboarding/internal/journey/upload"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/audit"
	"onboarding/pkg/platform/sentinel"
)

// SaveResult is the outcome of a step save. Warnings name dependent writes
// that failed after the journey itself was committed.
type SaveResult struct {
	Journey  *models.Journey
	Warnings []string
}

func (s *Service) startSpan(ctx context.Context, op string, userID uuid.UUID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "journey."+op, trace.WithAttributes(
		attribute.String("journey.user_id", userID.String()),
	))
}

func (s *Service) finish(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
	if s.metrics != nil {
		s.metrics.ObserveMutation(op, start, err)
	}
}

// GetJourney returns the stored journey for userID.
func (s *Service) GetJourney(ctx context.Context, userID uuid.UUID) (*models.Journey, error) {
	j, err := s.journeys.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "journey not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load journey")
	}
	return j, nil
}

// EnsureJourney creates userID's journey in draft on persona selection if it
// does not exist, and returns the stored one either way.
func (s *Service) EnsureJourney(ctx context.Context, userID uuid.UUID) (j *models.Journey, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "ensure", userID)
	defer func() { s.finish(span, "ensure", start, err) }()

	fresh, err := models.NewJourney(userID, s.now())
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	j, created, err := s.journeys.CreateIfAbsent(ctx, fresh)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to ensure journey")
	}
	span.SetAttributes(attribute.Bool("journey.created", created))
	if created {
		s.logAudit(ctx, audit.EventJourneyEnsured, j)
		s.publish(ctx, j)
	}
	return j, nil
}

// StartJourney records the persona choice and moves to its first step.
// Repeating the same choice is a no-op; choosing a different persona once
// one is set is refused.
func (s *Service) StartJourney(ctx context.Context, userID uuid.UUID, persona models.Persona) (j *models.Journey, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "start", userID)
	defer func() { s.finish(span, "start", start, err) }()

	if !persona.IsSelectable() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "persona %q is not selectable", persona)
	}
	first, _ := steps.First(persona)

	j, changed, err := s.mutate(ctx, userID, func(j *models.Journey, now time.Time) error {
		if !j.Status.IsDraft() {
			return dErrors.Newf(dErrors.CodeInvalidState, "cannot choose a persona for a journey in status %s", j.Status)
		}
		if j.Persona == persona {
			return errUnchanged
		}
		if j.Persona.IsSelectable() {
			return dErrors.Newf(dErrors.CodeInvalidState, "persona already selected as %s", j.Persona)
		}
		j.ApplyPersona(persona, first.String(), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logAudit(ctx, audit.EventJourneyStarted, j)
	}
	return j, nil
}

// SaveStep persists the data collected on the step named by stateValue and
// moves the journey past it. The step must be the journey's current step;
// saving the review step keeps the journey there. A replayed save of the
// step just completed merges its data without moving.
func (s *Service) SaveStep(ctx context.Context, userID uuid.UUID, stateValue string, patch map[string]any) (res *SaveResult, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "save_step", userID)
	defer func() { s.finish(span, "save_step", start, err) }()
	span.SetAttributes(attribute.String("journey.step", stateValue))

	saved, err := steps.Parse(stateValue)
	if err != nil {
		return nil, err
	}
	target := saved
	if next, ok := steps.Next(saved); ok {
		target = next
	}

	j, _, err := s.mutate(ctx, userID, func(j *models.Journey, now time.Time) error {
		if !j.Status.IsDraft() {
			return dErrors.Newf(dErrors.CodeInvalidState, "cannot save steps for a journey in status %s", j.Status)
		}
		if j.Persona != saved.Persona {
			return dErrors.Newf(dErrors.CodeInvalidState, "step %s does not belong to the %s flow", saved, j.Persona)
		}
		current, err := steps.Parse(j.StateValue)
		if err != nil {
			return dErrors.New(dErrors.CodeInvalidState, "journey is not on a step")
		}
		switch {
		case saved == current:
			j.ApplyStep(target.String(), patch, now)
		case target == current:
			j.ApplyStep(current.String(), patch, now)
		default:
			return dErrors.Newf(dErrors.CodeInvalidState, "cannot save %s while the journey is at %s", saved, current)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventStepSaved, j, "step", saved.String())

	res = &SaveResult{Journey: j}
	if saved.Step == steps.StepProfile {
		if warning := s.syncDirectory(ctx, j, patch); warning != "" {
			res.Warnings = append(res.Warnings, warning)
		}
	}
	return res, nil
}

// SubmitJourney hands a journey on its review step to the admin queue. patch
// carries any last review-step data and may be nil.
func (s *Service) SubmitJourney(ctx context.Context, userID uuid.UUID, patch map[string]any) (j *models.Journey, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "submit", userID)
	defer func() { s.finish(span, "submit", start, err) }()

	j, changed, err := s.mutate(ctx, userID, func(j *models.Journey, now time.Time) error {
		if j.Status == models.StatusAwaitingAdmin {
			return errUnchanged
		}
		if err := j.CanSubmit(); err != nil {
			return err
		}
		current, err := steps.Parse(j.StateValue)
		if err != nil || !steps.IsReview(current) {
			return dErrors.New(dErrors.CodeInvalidState, "a journey can only be submitted from its review step")
		}
		j.Context.Ensure(j.Persona).Merge(patch)
		j.ApplySubmit(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logAudit(ctx, audit.EventJourneySubmitted, j)
	}
	return j, nil
}

// GenerateDocumentUploadURL issues a signed upload location. Offered only
// while the journey sits on its documents step.
func (s *Service) GenerateDocumentUploadURL(ctx context.Context, userID uuid.UUID) (loc upload.Location, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "upload_url", userID)
	defer func() { s.finish(span, "upload_url", start, err) }()

	if s.uploads == nil {
		return upload.Location{}, dErrors.New(dErrors.CodeUnavailable, "document uploads are not configured")
	}
	j, err := s.GetJourney(ctx, userID)
	if err != nil {
		return upload.Location{}, err
	}
	if err := requireDocumentsStep(j); err != nil {
		return upload.Location{}, err
	}
	loc, err = s.uploads.Generate(userID)
	if err != nil {
		return upload.Location{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue upload location")
	}
	return loc, nil
}

// AttachDocument records a document uploaded to a location issued by
// GenerateDocumentUploadURL. Re-attaching the same location replaces its label.
func (s *Service) AttachDocument(ctx context.Context, userID uuid.UUID, token, label string) (j *models.Journey, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "attach_document", userID)
	defer func() { s.finish(span, "attach_document", start, err) }()

	if s.uploads == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "document uploads are not configured")
	}
	storageID, err := s.uploads.Verify(token, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.New(dErrors.CodeValidation, "upload location has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "upload token is not valid")
	}

	j, _, err = s.mutate(ctx, userID, func(j *models.Journey, now time.Time) error {
		if err := requireDocumentsStep(j); err != nil {
			return err
		}
		j.ApplyDocument(models.DocumentRef{
			StorageID:  storageID.String(),
			Label:      label,
			UploadedAt: now,
		}, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventDocumentAttached, j, "label", label)
	return j, nil
}

func requireDocumentsStep(j *models.Journey) error {
	if !j.Status.IsDraft() {
		return dErrors.Newf(dErrors.CodeInvalidState, "documents cannot change for a journey in status %s", j.Status)
	}
	current, err := steps.Parse(j.StateValue)
	if err != nil || !steps.IsDocuments(current) {
		return dErrors.New(dErrors.CodeInvalidState, "documents are only accepted on the documents step")
	}
	return nil
}

// RecordDecision applies an admin decision to a journey awaiting review.
// Redelivery of the decision already on the journey is a no-op.
func (s *Service) RecordDecision(ctx context.Context, userID uuid.UUID, decision models.AdminDecision) (j *models.Journey, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "record_decision", userID)
	defer func() { s.finish(span, "record_decision", start, err) }()
	span.SetAttributes(attribute.String("journey.decision", string(decision.Outcome)))

	j, changed, err := s.mutate(ctx, userID, func(j *models.Journey, now time.Time) error {
		if j.Decision != nil && sameDecision(*j.Decision, decision) {
			return errUnchanged
		}
		if err := j.CanDecide(decision); err != nil {
			return err
		}
		j.ApplyDecision(decision, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		if s.metrics != nil {
			s.metrics.Decisions.WithLabelValues(string(decision.Outcome), string(decision.Source)).Inc()
		}
		s.logAudit(ctx, audit.EventDecisionRecorded, j,
			"decision", string(decision.Outcome),
			"actor_id", decision.DecidedBy,
			"reason", decision.Notes,
		)
	}
	return j, nil
}

func sameDecision(a, b models.AdminDecision) bool {
	return a.Outcome == b.Outcome && a.DecidedBy == b.DecidedBy && a.DecidedAt.Equal(b.DecidedAt)
}

// Resubmit reopens a rejected journey as a new draft cycle on its review
// step. Refused unless resubmission is enabled.
func (s *Service) Resubmit(ctx context.Context, userID uuid.UUID) (j *models.Journey, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "resubmit", userID)
	defer func() { s.finish(span, "resubmit", start, err) }()

	if !s.allowResubmission {
		return nil, dErrors.New(dErrors.CodeForbidden, "resubmission after rejection is not enabled")
	}
	j, _, err = s.mutate(ctx, userID, func(j *models.Journey, now time.Time) error {
		if err := j.CanResubmit(); err != nil {
			return err
		}
		review, ok := steps.Review(j.Persona)
		if !ok {
			return dErrors.Newf(dErrors.CodeInvalidState, "journey has no %s flow", j.Persona)
		}
		j.ApplyResubmission(review.String(), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventJourneyResubmitted, j, "reason", fmt.Sprintf("cycle %d", j.Cycle))
	return j, nil
}
