package decisions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding/internal/journey/models"
	"onboarding/internal/platform/kafka"
	"onboarding/internal/platform/logger"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/requestcontext"
)

type fakeRecorder struct {
	errs      []error
	calls     int
	userID    uuid.UUID
	decision  models.AdminDecision
	requestID string
}

func (f *fakeRecorder) RecordDecision(ctx context.Context, userID uuid.UUID, d models.AdminDecision) (*models.Journey, error) {
	f.calls++
	f.userID, f.decision = userID, d
	f.requestID = requestcontext.RequestID(ctx)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &models.Journey{UserID: userID, Status: d.Outcome}, nil
}

type HandlerSuite struct {
	suite.Suite
	recorder *fakeRecorder
	handler  *Handler
	record   Record
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.recorder = &fakeRecorder{}
	s.handler = NewHandler(s.recorder, logger.Discard(), WithRetry(3, time.Millisecond))
	s.record = Record{
		UserID:    uuid.New(),
		Outcome:   models.StatusRejected,
		DecidedAt: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		DecidedBy: "admin-7",
		Source:    models.DecisionSourceAdmin,
		Notes:     "Missing license",
		RequestID: "req-42",
	}
}

func (s *HandlerSuite) message(v any) *kafka.Message {
	payload, err := json.Marshal(v)
	s.Require().NoError(err)
	return &kafka.Message{Topic: "journey.decisions", Value: payload, Offset: 12}
}

func (s *HandlerSuite) TestAppliesDecision() {
	s.Require().NoError(s.handler.Handle(context.Background(), s.message(s.record)))

	s.Equal(1, s.recorder.calls)
	s.Equal(s.record.UserID, s.recorder.userID)
	s.Equal("Missing license", s.recorder.decision.Notes)
	s.Equal(models.DecisionSourceAdmin, s.recorder.decision.Source)
	s.Equal("req-42", s.recorder.requestID)
}

func (s *HandlerSuite) TestPoisonRecordsAreAcknowledged() {
	s.Run("malformed json", func() {
		s.NoError(s.handler.Handle(context.Background(), &kafka.Message{Value: []byte("{not json")}))
	})
	s.Run("missing user", func() {
		rec := s.record
		rec.UserID = uuid.Nil
		s.NoError(s.handler.Handle(context.Background(), s.message(rec)))
	})
	s.Equal(0, s.recorder.calls)
}

func (s *HandlerSuite) TestDomainRejectionIsNotRetried() {
	s.recorder.errs = []error{dErrors.New(dErrors.CodeInvalidState, "journey is still a draft")}

	s.NoError(s.handler.Handle(context.Background(), s.message(s.record)))
	s.Equal(1, s.recorder.calls)
}

func (s *HandlerSuite) TestTransientFailureIsRetried() {
	s.recorder.errs = []error{
		dErrors.New(dErrors.CodeConflict, "modified concurrently"),
		errors.New("connection reset"),
	}

	s.NoError(s.handler.Handle(context.Background(), s.message(s.record)))
	s.Equal(3, s.recorder.calls)
}

func (s *HandlerSuite) TestPersistentFailureLeavesRecordUncommitted() {
	unavailable := dErrors.New(dErrors.CodeUnavailable, "store down")
	s.recorder.errs = []error{unavailable, unavailable, unavailable}

	err := s.handler.Handle(context.Background(), s.message(s.record))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(3, s.recorder.calls)
}
