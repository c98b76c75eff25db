//go:build integration

package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding/internal/journey/models"
	"onboarding/internal/journey/realtime"
	"onboarding/internal/platform/logger"
	"onboarding/pkg/testutil/containers"
)

type RedisHubSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisHubSuite(t *testing.T) {
	suite.Run(t, new(RedisHubSuite))
}

func (s *RedisHubSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisHubSuite) TestRelaysAcrossInstances() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readerLocal := realtime.NewHub()
	reader := realtime.NewRedisHub(s.redis.Client.Client, "onboarding:test", readerLocal, logger.Discard())
	writer := realtime.NewRedisHub(s.redis.Client.Client, "onboarding:test", realtime.NewHub(), logger.Discard())
	go func() { _ = reader.Run(ctx) }()

	userID := uuid.New()
	ch, unsubscribe := reader.Subscribe(ctx, userID)
	defer unsubscribe()

	j, err := models.NewJourney(userID, time.Now().UTC())
	s.Require().NoError(err)
	j.Version = 7

	// The relay subscribes asynchronously; republish until it is listening.
	var got *models.Journey
	s.Require().Eventually(func() bool {
		if err := writer.Publish(ctx, j); err != nil {
			return false
		}
		select {
		case got = <-ch:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	s.Equal(int64(7), got.Version)
	s.Equal(userID, got.UserID)
}
