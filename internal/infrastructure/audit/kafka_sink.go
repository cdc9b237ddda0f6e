package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/apishield/internal/config"
	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/logger"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes attempt records as JSON, keyed by identity.
type KafkaSink struct {
	writer MessageWriter
	logger logger.Logger
}

// NewKafkaSink creates a sink writing to cfg.Topic.
func NewKafkaSink(cfg config.KafkaConfig, log logger.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaSinkWithWriter(writer, log)
}

// NewKafkaSinkWithWriter creates a sink over an existing writer.
func NewKafkaSinkWithWriter(writer MessageWriter, log logger.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, logger: log.WithComponent("kafka_audit_sink")}
}

func (s *KafkaSink) Record(ctx context.Context, a *models.AttemptRecord) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.Identity),
		Value: payload,
		Time:  a.RecordedAt,
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to write attempt to Kafka", err, logger.String("event_id", a.EventID.String()))
	}
	return err
}

// Close closes the underlying Kafka writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
