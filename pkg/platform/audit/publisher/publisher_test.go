package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "onboarding/pkg/platform/audit"
	"onboarding/pkg/platform/audit/store/memory"
)

type PublisherSuite struct {
	suite.Suite
	store  *memory.InMemoryStore
	userID uuid.UUID
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.userID = uuid.New()
}

func (s *PublisherSuite) stepSaved(subject string) audit.Event {
	return audit.Event{
		UserID:  s.userID,
		Subject: subject,
		Action:  string(audit.EventStepSaved),
		Persona: "broker",
	}
}

func (s *PublisherSuite) stored() []audit.Event {
	events, err := s.store.ListByUser(context.Background(), s.userID)
	s.Require().NoError(err)
	return events
}

func (s *PublisherSuite) TestWriteThroughFillsDefaults() {
	pub := NewPublisher(s.store)

	s.Require().NoError(pub.Emit(context.Background(), s.stepSaved("broker.license")))
	s.Require().NoError(pub.Emit(context.Background(), audit.Event{
		UserID: s.userID,
		Action: string(audit.EventJourneySubmitted),
	}))

	events := s.stored()
	s.Require().Len(events, 2)
	s.False(events[0].Timestamp.IsZero())
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.Equal(audit.CategoryCompliance, events[1].Category)
}

func (s *PublisherSuite) TestKeepsCallerTimestampAndCategory() {
	pub := NewPublisher(s.store)
	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	event := s.stepSaved("broker.firm")
	event.Timestamp = at
	event.Category = audit.CategoryCompliance

	s.Require().NoError(pub.Emit(context.Background(), event))

	events := s.stored()
	s.Require().Len(events, 1)
	s.Equal(at, events[0].Timestamp)
	s.Equal(audit.CategoryCompliance, events[0].Category)
}

func (s *PublisherSuite) TestListIsPerUser() {
	pub := NewPublisher(s.store)
	other := uuid.New()

	s.Require().NoError(pub.Emit(context.Background(), s.stepSaved("broker.intro")))
	s.Require().NoError(pub.Emit(context.Background(), audit.Event{UserID: other, Action: string(audit.EventJourneyEnsured)}))

	mine, err := pub.List(context.Background(), s.userID)
	s.Require().NoError(err)
	theirs, err := pub.List(context.Background(), other)
	s.Require().NoError(err)
	s.Len(mine, 1)
	s.Require().Len(theirs, 1)
	s.Equal(string(audit.EventJourneyEnsured), theirs[0].Action)
}

func (s *PublisherSuite) TestAsyncCloseDrainsInOrder() {
	pub := NewPublisher(s.store, WithAsyncBuffer(16))
	subjects := []string{"broker.intro", "broker.profile", "broker.license", "broker.firm"}
	for _, subject := range subjects {
		s.Require().NoError(pub.Emit(context.Background(), s.stepSaved(subject)))
	}
	pub.Close()

	events := s.stored()
	s.Require().Len(events, len(subjects))
	for i, subject := range subjects {
		s.Equal(subject, events[i].Subject)
	}
}

func (s *PublisherSuite) TestEmitAfterCloseWritesThrough() {
	pub := NewPublisher(s.store, WithAsyncBuffer(4))
	pub.Close()
	pub.Close()

	s.Require().NoError(pub.Emit(context.Background(), s.stepSaved("broker.review")))
	s.Len(s.stored(), 1)
}

func (s *PublisherSuite) TestConcurrentEmitters() {
	pub := NewPublisher(s.store, WithAsyncBuffer(64))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 4 {
				_ = pub.Emit(context.Background(), s.stepSaved("broker.profile"))
			}
		}()
	}
	wg.Wait()
	pub.Close()

	s.Len(s.stored(), 32)
}

// gatedStore parks the worker inside Append until release is closed.
type gatedStore struct {
	*memory.InMemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Append(ctx context.Context, event audit.Event) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.InMemoryStore.Append(ctx, event)
}

func (s *PublisherSuite) TestFullBufferRejects() {
	gated := &gatedStore{
		InMemoryStore: s.store,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	pub := NewPublisher(gated, WithAsyncBuffer(1))

	s.Require().NoError(pub.Emit(context.Background(), s.stepSaved("broker.intro")))
	<-gated.entered
	s.Require().NoError(pub.Emit(context.Background(), s.stepSaved("broker.profile")))
	s.ErrorIs(pub.Emit(context.Background(), s.stepSaved("broker.license")), ErrBufferFull)

	close(gated.release)
	pub.Close()
	s.Len(s.stored(), 2)
}

func (s *PublisherSuite) TestCancelledContextWithFullBuffer() {
	gated := &gatedStore{
		InMemoryStore: s.store,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	pub := NewPublisher(gated, WithAsyncBuffer(1))
	s.Require().NoError(pub.Emit(context.Background(), s.stepSaved("broker.intro")))
	<-gated.entered
	s.Require().NoError(pub.Emit(context.Background(), s.stepSaved("broker.profile")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.Emit(ctx, s.stepSaved("broker.license"))
	s.Error(err)

	close(gated.release)
	pub.Close()
}
