package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/apishield/internal/config"
	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/pkg/logger"
)

// MessageReader is the part of *kafka.Reader the archiver uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ArchiveStats counts what a Run call did with the messages it read.
type ArchiveStats struct {
	Stored   int `json:"stored"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// Archiver drains the attempt topic into a sink, typically the database.
// Every shield instance publishes to the topic; one archiver group stores it.
type Archiver struct {
	reader MessageReader
	sink   service.AuditSink
	secret string
	logger logger.Logger
}

// NewArchiver creates an archiver consuming cfg.Topic as group cfg.GroupID.
// When secret is set, messages with a missing or wrong signature are dropped.
func NewArchiver(cfg config.KafkaConfig, sink service.AuditSink, secret string, log logger.Logger) *Archiver {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
	return NewArchiverWithReader(reader, sink, secret, log)
}

// NewArchiverWithReader creates an archiver over an existing reader.
func NewArchiverWithReader(reader MessageReader, sink service.AuditSink, secret string, log logger.Logger) *Archiver {
	return &Archiver{
		reader: reader,
		sink:   sink,
		secret: secret,
		logger: log.WithComponent("attempt_archiver"),
	}
}

// Run consumes until ctx is cancelled or the reader fails. Malformed and
// unverifiable messages are committed so they are not redelivered; messages
// the sink could not store are left uncommitted.
func (a *Archiver) Run(ctx context.Context) (ArchiveStats, error) {
	var stats ArchiveStats
	a.logger.Info(ctx, "Attempt archiver started")
	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				a.logger.Info(context.Background(), "Attempt archiver stopped",
					logger.Int("stored", stats.Stored),
					logger.Int("rejected", stats.Rejected),
					logger.Int("failed", stats.Failed),
				)
				return stats, nil
			}
			return stats, err
		}

		var attempt models.AttemptRecord
		if err := json.Unmarshal(msg.Value, &attempt); err != nil {
			a.logger.Warn(ctx, "Dropping malformed attempt message",
				logger.Int64("offset", msg.Offset),
				logger.String("error", err.Error()),
			)
			stats.Rejected++
			a.commit(ctx, msg)
			continue
		}
		if a.secret != "" && !VerifyAttempt(attempt, a.secret) {
			a.logger.Warn(ctx, "Dropping attempt with invalid signature",
				logger.String("event_id", attempt.EventID.String()),
				logger.String("identity", attempt.Identity),
			)
			stats.Rejected++
			a.commit(ctx, msg)
			continue
		}

		if err := a.sink.Record(ctx, &attempt); err != nil {
			a.logger.Error(ctx, "Failed to archive attempt", err, logger.String("event_id", attempt.EventID.String()))
			stats.Failed++
			continue
		}
		stats.Stored++
		a.commit(ctx, msg)
	}
}

// Close closes the reader.
func (a *Archiver) Close() error {
	return a.reader.Close()
}

func (a *Archiver) commit(ctx context.Context, msg kafka.Message) {
	if err := a.reader.CommitMessages(ctx, msg); err != nil {
		a.logger.Warn(ctx, "Failed to commit attempt message",
			logger.Int64("offset", msg.Offset),
			logger.String("error", err.Error()),
		)
	}
}
