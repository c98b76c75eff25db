package service

import (
	"context"

	"onboarding/internal/journey/models"
	"onboarding/pkg/platform/audit"
)

const (
	warnDirectorySyncFailed      = "directory_sync_failed"
	warnDirectorySyncUnavailable = "directory_sync_unavailable"
)

// syncDirectory pushes profile fields to the user directory after the
// journey write has committed. It returns a warning code on failure.
func (s *Service) syncDirectory(ctx context.Context, j *models.Journey, fields map[string]any) string {
	if s.directory == nil || len(fields) == 0 {
		return ""
	}
	if !s.directoryBreaker.Allow() {
		if s.metrics != nil {
			s.metrics.SyncWarnings.Inc()
		}
		s.logger.WarnContext(ctx, "directory sync skipped while circuit is open",
			"breaker", s.directoryBreaker.Name(),
			"user_id", j.UserID,
			"version", j.Version,
		)
		return warnDirectorySyncUnavailable
	}
	err := s.directory.SyncProfile(ctx, j.UserID, j.Persona, fields)
	if err == nil {
		if _, change := s.directoryBreaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "directory sync recovered",
				"breaker", s.directoryBreaker.Name(),
			)
		}
		return ""
	}

	open, change := s.directoryBreaker.RecordFailure()
	if change.Opened {
		s.logger.ErrorContext(ctx, "directory sync circuit opened",
			"breaker", s.directoryBreaker.Name(),
			"error", err,
		)
	}
	if s.metrics != nil {
		s.metrics.SyncWarnings.Inc()
	}
	s.logger.WarnContext(ctx, "directory sync failed after journey save",
		"user_id", j.UserID,
		"version", j.Version,
		"error", err,
	)
	s.logAudit(ctx, audit.EventDirectorySyncFail, j, "reason", err.Error())
	if open {
		return warnDirectorySyncUnavailable
	}
	return warnDirectorySyncFailed
}
