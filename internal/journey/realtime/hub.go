// Package realtime fans changed journey documents out to live subscribers.
// Each delivered value is a full document, so a subscriber that falls
// behind only ever needs the newest one.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"onboarding/internal/journey/metrics"
	"onboarding/internal/journey/models"
)

const subscriberBuffer = 4

type subscriber struct {
	ch chan *models.Journey
}

// Hub is an in-process publish/subscribe switch keyed by user.
type Hub struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]map[*subscriber]struct{}
	metrics *metrics.Metrics
}

type HubOption func(*Hub)

func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{subs: make(map[uuid.UUID]map[*subscriber]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers j to every subscriber of j.UserID without blocking. When
// a subscriber's buffer is full the oldest queued document is replaced.
func (h *Hub) Publish(_ context.Context, j *models.Journey) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[j.UserID] {
		doc := j.Clone()
		select {
		case sub.ch <- doc:
			continue
		default:
		}
		select {
		case <-sub.ch:
			if h.metrics != nil {
				h.metrics.StreamDropped.Inc()
			}
		default:
		}
		select {
		case sub.ch <- doc:
		default:
		}
	}
	return nil
}

// Subscribe registers for userID's documents until cancel is called or ctx
// ends. The channel is closed on cancellation.
func (h *Hub) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan *models.Journey, func()) {
	sub := &subscriber{ch: make(chan *models.Journey, subscriberBuffer)}
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamSubscribers.Inc()
	}

	var once sync.Once
	unregister := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], sub)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(sub.ch)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.StreamSubscribers.Dec()
			}
		})
	}
	stop := context.AfterFunc(ctx, unregister)
	return sub.ch, func() {
		stop()
		unregister()
	}
}

// Subscribers reports how many subscriptions userID has.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
