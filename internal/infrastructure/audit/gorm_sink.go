package audit

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/apishield/internal/domain/models"
)

// AttemptEntry is the persisted form of an attempt record.
type AttemptEntry struct {
	EventID     string    `gorm:"column:event_id;primaryKey;size:36" json:"event_id"`
	Identity    string    `gorm:"column:identity;index;size:255" json:"identity"`
	Count       int64     `gorm:"column:count" json:"count"`
	WindowStart time.Time `gorm:"column:window_start" json:"window_start"`
	Path        string    `gorm:"column:path;size:2048" json:"path"`
	ScopeKey    string    `gorm:"column:scope_key;size:512" json:"scope_key,omitempty"`
	Tripped     bool      `gorm:"column:tripped" json:"tripped"`
	RecordedAt  time.Time `gorm:"column:recorded_at;index" json:"recorded_at"`
	TraceID     string    `gorm:"column:trace_id;size:32" json:"trace_id,omitempty"`
	Signature   string    `gorm:"column:signature;size:64" json:"signature,omitempty"`
}

func (AttemptEntry) TableName() string { return "shield_attempts" }

// GormSink stores attempt records in a relational database.
type GormSink struct {
	db *gorm.DB
}

// NewGormSink migrates the attempt table and returns the sink.
func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if err := db.AutoMigrate(&AttemptEntry{}); err != nil {
		return nil, err
	}
	return &GormSink{db: db}, nil
}

// Record inserts a; an event id that is already stored is ignored, so
// redelivered messages are harmless.
func (s *GormSink) Record(ctx context.Context, a *models.AttemptRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&AttemptEntry{
		EventID:     a.EventID.String(),
		Identity:    a.Identity,
		Count:       a.Count,
		WindowStart: a.WindowStart,
		Path:        a.Path,
		ScopeKey:    a.ScopeKey,
		Tripped:     a.Tripped,
		RecordedAt:  a.RecordedAt,
		TraceID:     a.TraceID,
		Signature:   a.Signature,
	}).Error
}

// Recent returns the latest attempts of identity, newest first.
func (s *GormSink) Recent(ctx context.Context, identity string, limit int) ([]AttemptEntry, error) {
	entries := []AttemptEntry{}
	err := s.db.WithContext(ctx).
		Where("identity = ?", identity).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
