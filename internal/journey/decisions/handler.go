// Package decisions consumes admin review outcomes from Kafka and applies
// them to journeys.
package decisions

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"onboarding/internal/journey/models"
	"onboarding/internal/platform/kafka"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/requestcontext"
)

// Recorder applies a decision to a journey.
type Recorder interface {
	RecordDecision(ctx context.Context, userID uuid.UUID, decision models.AdminDecision) (*models.Journey, error)
}

// Record is the wire form of a decision on the decisions topic.
type Record struct {
	UserID    uuid.UUID             `json:"user_id"`
	Outcome   models.Status         `json:"outcome"`
	DecidedAt time.Time             `json:"decided_at"`
	DecidedBy string                `json:"decided_by"`
	Source    models.DecisionSource `json:"decision_source"`
	Notes     string                `json:"notes,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
}

func (r Record) decision() models.AdminDecision {
	return models.AdminDecision{
		Outcome:   r.Outcome,
		DecidedAt: r.DecidedAt,
		DecidedBy: r.DecidedBy,
		Source:    r.Source,
		Notes:     r.Notes,
	}
}

// Handler implements kafka.Handler for the decisions topic. Records that
// can never apply are logged and acknowledged; transient failures are
// retried and, if they persist, left uncommitted.
type Handler struct {
	recorder    Recorder
	logger      *slog.Logger
	maxAttempts uint64
	interval    time.Duration
}

type Option func(*Handler)

func WithRetry(maxAttempts uint64, interval time.Duration) Option {
	return func(h *Handler) {
		h.maxAttempts = maxAttempts
		h.interval = interval
	}
}

func NewHandler(recorder Recorder, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{recorder: recorder, logger: logger, maxAttempts: 5, interval: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ kafka.Handler = (*Handler)(nil)

func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) error {
	var rec Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		h.skip(ctx, msg, "malformed decision record", err)
		return nil
	}
	if rec.UserID == uuid.Nil {
		h.skip(ctx, msg, "decision record without user", nil)
		return nil
	}
	if rec.RequestID != "" {
		ctx = requestcontext.WithRequestID(ctx, rec.RequestID)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.interval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, h.maxAttempts-1), ctx)

	err := backoff.Retry(func() error {
		_, err := h.recorder.RecordDecision(ctx, rec.UserID, rec.decision())
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	switch {
	case err == nil:
		h.logger.InfoContext(ctx, "decision applied",
			"user_id", rec.UserID,
			"outcome", rec.Outcome,
			"offset", msg.Offset,
		)
		return nil
	case transient(err):
		return err
	default:
		h.skip(ctx, msg, "decision rejected", err)
		return nil
	}
}

func transient(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeConflict, dErrors.CodeInternal, dErrors.CodeUnavailable:
		return true
	}
	return false
}

func (h *Handler) skip(ctx context.Context, msg *kafka.Message, reason string, err error) {
	args := []any{
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	}
	if err != nil {
		args = append(args, "error", err)
	}
	h.logger.WarnContext(ctx, reason, args...)
}
