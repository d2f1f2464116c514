package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/solar-watch/pkg/config"
)

// Publisher delivers lifecycle events
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// Producer writes lifecycle events to the alerts topic, one message per
// event keyed by POD so that a POD's history stays ordered.
type Producer struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewProducer creates a producer for cfg.TopicAlerts. Writes are synchronous
// and flushed immediately; lifecycle events are rare and callers wait on them.
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.TopicAlerts,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: cfg.PublishTimeout,
			MaxAttempts:  3,
		},
		timeout: cfg.PublishTimeout,
	}
}

// Publish encodes and sends one event, giving up after the publish timeout
// so an unreachable broker cannot stall a lifecycle transition
func (p *Producer) Publish(ctx context.Context, e *Event) error {
	value, err := e.Encode()
	if err != nil {
		return err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event %s: %w", e.Type, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer tails the alerts topic
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer starts at the newest offset. An empty groupID reads without
// committing offsets.
func NewConsumer(cfg config.KafkaConfig, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.TopicAlerts,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    1 << 20,
			MaxWait:     time.Second,
			StartOffset: kafka.LastOffset,
		}),
	}
}

// Next blocks until the next event arrives. Messages that do not decode as
// events are reported as errors.
func (c *Consumer) Next(ctx context.Context) (*Event, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	e, err := Decode(msg.Value)
	if err != nil {
		return nil, fmt.Errorf("offset %d: %w", msg.Offset, err)
	}
	return e, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// NopPublisher discards events; used when Kafka is not configured
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                          { return nil }
