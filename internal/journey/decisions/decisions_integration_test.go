//go:build integration

package decisions_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding/internal/journey/decisions"
	"onboarding/internal/journey/models"
	"onboarding/internal/journey/service"
	"onboarding/internal/journey/store"
	"onboarding/internal/platform/kafka"
	"onboarding/internal/platform/logger"
	"onboarding/pkg/testutil/containers"
)

const decisionsTopic = "journey.decisions"

type DecisionIntakeSuite struct {
	suite.Suite
	kafka *containers.KafkaContainer
}

func TestDecisionIntakeSuite(t *testing.T) {
	suite.Run(t, new(DecisionIntakeSuite))
}

func (s *DecisionIntakeSuite) SetupSuite() {
	s.kafka = containers.NewKafkaContainer(s.T())
	s.kafka.CreateTopics(s.T(), decisionsTopic)
}

// submitted walks a fresh broker journey to the admin queue.
func (s *DecisionIntakeSuite) submitted(ctx context.Context, svc *service.Service) uuid.UUID {
	userID := uuid.New()
	_, err := svc.EnsureJourney(ctx, userID)
	s.Require().NoError(err)
	j, err := svc.StartJourney(ctx, userID, models.PersonaBroker)
	s.Require().NoError(err)
	for j.StateValue != "broker.review" {
		res, err := svc.SaveStep(ctx, userID, j.StateValue, nil)
		s.Require().NoError(err)
		j = res.Journey
	}
	_, err = svc.SubmitJourney(ctx, userID, nil)
	s.Require().NoError(err)
	return userID
}

func (s *DecisionIntakeSuite) TestConsumedDecisionSettlesJourney() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := service.New(store.NewInMemory(), service.WithLogger(logger.Discard()))
	approved := s.submitted(ctx, svc)
	rejected := s.submitted(ctx, svc)

	consumer, err := kafka.NewConsumer(s.kafka.Brokers, "decisions-test", "decisions-test-"+uuid.NewString(),
		[]string{decisionsTopic}, decisions.NewHandler(svc, logger.Discard()), logger.Discard())
	s.Require().NoError(err)
	go func() { _ = consumer.Run(ctx) }()

	producer, err := kafka.NewProducer(s.kafka.Brokers, "decisions-test")
	s.Require().NoError(err)
	defer producer.Close()

	publish := func(v any, key string) {
		payload, err := json.Marshal(v)
		s.Require().NoError(err)
		s.Require().NoError(producer.Publish(ctx, decisionsTopic, []byte(key), payload))
	}
	publish(map[string]any{"not": "a decision"}, "poison")
	publish(decisions.Record{
		UserID:    approved,
		Outcome:   models.StatusApproved,
		DecidedAt: time.Now().UTC(),
		DecidedBy: "reviewer-1",
		Source:    models.DecisionSourceAdmin,
	}, approved.String())
	publish(decisions.Record{
		UserID:    rejected,
		Outcome:   models.StatusRejected,
		DecidedAt: time.Now().UTC(),
		DecidedBy: "rules",
		Source:    models.DecisionSourceSystem,
		Notes:     "license expired",
	}, rejected.String())

	s.Eventually(func() bool {
		a, err := svc.GetJourney(ctx, approved)
		if err != nil || a.Status != models.StatusApproved {
			return false
		}
		r, err := svc.GetJourney(ctx, rejected)
		return err == nil && r.Status == models.StatusRejected
	}, 30*time.Second, 100*time.Millisecond)

	r, err := svc.GetJourney(ctx, rejected)
	s.Require().NoError(err)
	s.Require().NotNil(r.Decision)
	s.Equal("license expired", r.Decision.Notes)
}
