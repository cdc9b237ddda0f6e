// Package audit provides the attempt log collaborators: a daily file, Kafka,
// a database table, plus the threshold gate, fan-out and HMAC signing wrappers.
package audit

import (
	"errors"
	"io"

	"gorm.io/gorm"

	"github.com/turtacn/apishield/internal/config"
	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/pkg/logger"
)

// Build assembles the configured sinks. The attempt log file is gated by
// attemptLog.Attempts; Kafka and database sinks receive every attempt. It
// returns a nil sink when nothing is enabled. db is required when
// cfg.Database is set.
func Build(attemptLog config.AttemptLogConfig, cfg config.AuditConfig, db *gorm.DB, log logger.Logger) (service.AuditSink, io.Closer, error) {
	var (
		sinks   MultiSink
		closers closerList
	)

	if attemptLog.Path != "" && attemptLog.Attempts > 0 {
		sinks = append(sinks, NewThresholdSink(NewFileSink(attemptLog.Path), attemptLog.Attempts))
	}

	var signed MultiSink
	if cfg.Kafka.Enabled {
		k := NewKafkaSink(cfg.Kafka, log)
		signed = append(signed, k)
		closers = append(closers, k)
	}
	if cfg.Database {
		if db == nil {
			return nil, nil, errors.New("audit.database requires an SQL storage driver")
		}
		g, err := NewGormSink(db)
		if err != nil {
			return nil, nil, err
		}
		signed = append(signed, g)
	}
	if len(signed) > 0 {
		var sink service.AuditSink = signed
		if cfg.HMACSecret != "" {
			sink = NewSigningSink(signed, cfg.HMACSecret)
		}
		sinks = append(sinks, sink)
	}

	switch len(sinks) {
	case 0:
		return nil, closers, nil
	case 1:
		return sinks[0], closers, nil
	default:
		return sinks, closers, nil
	}
}

type closerList []io.Closer

func (c closerList) Close() error {
	var errs []error
	for _, cl := range c {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
