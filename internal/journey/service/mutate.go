package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"onboarding/internal/journey/models"
	"onboarding/internal/journey/store"
	dErrors "onboarding/pkg/domain-errors"
)

// errUnchanged lets a mutation report that the stored document already
// reflects the request. mutate then returns it without writing.
var errUnchanged = errors.New("journey unchanged")

// mutation validates the request against a copy of the stored journey and
// applies it. Returned errors are final; they are never retried.
type mutation func(j *models.Journey, now time.Time) error

// mutate runs fn against the latest stored journey and commits the result
// with a compare-and-swap. A version conflict reloads and re-validates, so a
// request that was legal against a stale read is re-judged on fresh state.
func (s *Service) mutate(ctx context.Context, userID uuid.UUID, fn mutation) (*models.Journey, bool, error) {
	var (
		result  *models.Journey
		changed bool
	)
	attempt := func() error {
		current, err := s.journeys.FindByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return backoff.Permanent(dErrors.New(dErrors.CodeNotFound, "journey not found"))
			}
			return backoff.Permanent(dErrors.Wrap(err, dErrors.CodeInternal, "failed to load journey"))
		}

		next := current.Clone()
		if err := fn(next, s.now()); err != nil {
			if errors.Is(err, errUnchanged) {
				result, changed = current, false
				return nil
			}
			return backoff.Permanent(err)
		}

		if err := s.journeys.Update(ctx, next, current.Version); err != nil {
			switch {
			case errors.Is(err, store.ErrConflict):
				if s.metrics != nil {
					s.metrics.WriteConflicts.Inc()
				}
				s.logger.DebugContext(ctx, "journey version conflict, retrying",
					"user_id", userID,
					"expected_version", current.Version,
				)
				return err
			case errors.Is(err, store.ErrNotFound):
				return backoff.Permanent(dErrors.New(dErrors.CodeNotFound, "journey not found"))
			default:
				return backoff.Permanent(dErrors.Wrap(err, dErrors.CodeInternal, "failed to save journey"))
			}
		}
		result, changed = next, true
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	b.MaxInterval = 20 * s.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.maxAttempts-1), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, false, dErrors.New(dErrors.CodeConflict, "journey was modified concurrently; reload and retry")
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "journey update cancelled")
		}
		return nil, false, err
	}
	if changed {
		s.publish(ctx, result)
	}
	return result, changed, nil
}

// publish fans a written document out to every event sink. Sink failures
// are logged; the write has already happened.
func (s *Service) publish(ctx context.Context, j *models.Journey) {
	for _, p := range s.eventPublishers {
		if err := p.Publish(ctx, j); err != nil {
			s.logger.WarnContext(ctx, "failed to publish journey change",
				"user_id", j.UserID,
				"version", j.Version,
				"error", err,
			)
		}
	}
}
