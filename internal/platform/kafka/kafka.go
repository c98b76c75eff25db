// Package kafka holds thin franz-go wrappers for producing and consuming JSON records.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a consumed record, decoupled from kgo for handlers and tests.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Partition int32
	Offset    int64
}

// Handler processes one message. A non-nil error leaves the offset
// uncommitted and the message is redelivered.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Producer publishes records synchronously.
type Producer struct {
	client *kgo.Client
}

// NewProducer connects a producing client to brokers.
func NewProducer(brokers []string, clientID string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: client}, nil
}

// Publish writes value under key to topic and waits for the ack.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() {
	p.client.Close()
}

// Consumer polls a consumer group and dispatches records to a Handler.
type Consumer struct {
	client     *kgo.Client
	handler    Handler
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewConsumer joins group and subscribes to topics. Offsets are committed
// manually, per partition, up to the last record handled without error.
func NewConsumer(brokers []string, clientID, group string, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger, retryDelay: time.Second}, nil
}

// Run polls until ctx is cancelled. A record whose handler fails is neither
// committed nor skipped: its partition is rewound to it and redelivered
// after a short delay, and records behind it wait.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var (
			toCommit []*kgo.Record
			failed   []*kgo.Record
		)
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			handled, stuck := c.settlePartition(ctx, p.Records)
			toCommit = append(toCommit, handled...)
			if stuck != nil {
				failed = append(failed, stuck)
			}
		})
		if len(toCommit) > 0 {
			if err := c.client.CommitRecords(ctx, toCommit...); err != nil {
				c.logger.WarnContext(ctx, "kafka commit failed", "error", err)
			}
		}
		if len(failed) > 0 {
			c.client.SetOffsets(rewindOffsets(failed))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
}

// settlePartition hands one partition's records to the handler in offset
// order and stops at the first failure. It returns the records handled and
// the one that failed, if any.
func (c *Consumer) settlePartition(ctx context.Context, records []*kgo.Record) ([]*kgo.Record, *kgo.Record) {
	handled := make([]*kgo.Record, 0, len(records))
	for _, rec := range records {
		msg := &Message{
			Topic:     rec.Topic,
			Key:       rec.Key,
			Value:     rec.Value,
			Partition: rec.Partition,
			Offset:    rec.Offset,
		}
		if err := c.handler.Handle(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "kafka handler failed, partition rewound",
				"topic", rec.Topic,
				"partition", rec.Partition,
				"offset", rec.Offset,
				"held_back", len(records)-len(handled)-1,
				"error", err,
			)
			return handled, rec
		}
		handled = append(handled, rec)
	}
	return handled, nil
}

// rewindOffsets points each failed record's partition back at that record.
func rewindOffsets(failed []*kgo.Record) map[string]map[int32]kgo.EpochOffset {
	offsets := make(map[string]map[int32]kgo.EpochOffset)
	for _, rec := range failed {
		if offsets[rec.Topic] == nil {
			offsets[rec.Topic] = make(map[int32]kgo.EpochOffset)
		}
		offsets[rec.Topic][rec.Partition] = kgo.EpochOffset{Epoch: rec.LeaderEpoch, Offset: rec.Offset}
	}
	return offsets
}
