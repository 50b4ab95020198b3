package events

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string
	// Topic sends every event to one topic. Empty routes each event to its Topic().
	Topic        string
	BatchTimeout time.Duration
	MaxAttempts  int
}

// KafkaPublisher writes events as JSON messages keyed by entity type, so all
// changes to one kind land on the same partition in order.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher with its own kafka.Writer.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, goerrors.New("kafka publisher requires at least one broker", goerrors.CategoryBadInput)
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxAttempts,
	}
	return NewKafkaPublisherFromWriter(writer, cfg.Topic, logger), nil
}

// NewKafkaPublisherFromWriter wraps writer, which must not have its own Topic set.
func NewKafkaPublisherFromWriter(writer MessageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger.Named("events.kafka")}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encode event "+event.Topic())
	}

	msg := kafka.Message{
		Topic: p.topicFor(event),
		Key:   []byte(event.EntityType),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "action", Value: []byte(event.Action)},
		},
		Time: event.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to send event",
			zap.String("topic", msg.Topic),
			zap.Stringer("event_id", event.ID),
			zap.Error(err),
		)
		return goerrors.Wrap(err, goerrors.CategoryExternal, "kafka publish "+event.Topic())
	}

	p.logger.Debug("event sent", zap.String("topic", msg.Topic), zap.Stringer("event_id", event.ID))
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) topicFor(event Event) string {
	if p.topic != "" {
		return p.topic
	}
	return event.Topic()
}
