package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/pkg/constants"
)

var (
	_ service.Storage            = (*Store)(nil)
	_ service.AtomicCounterStore = (*Store)(nil)
	_ service.Pinger             = (*Store)(nil)
)

// ShieldEntry is one stored record.
type ShieldEntry struct {
	Key       string `gorm:"column:entry_key;primaryKey;size:512"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (ShieldEntry) TableName() string {
	return "shield_entries"
}

// Store is a key-value shield store over the shield_entries table.
type Store struct {
	conn *DBConnection
}

// NewStore creates a store on conn.
func NewStore(conn *DBConnection) *Store {
	return &Store{conn: conn}
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.conn.DB().WithContext(ctx)
}

// Get implements service.Storage.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry ShieldEntry
	err := s.db(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set implements service.Storage as an upsert.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := upsert(s.db(ctx), key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Remove implements service.Storage.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.db(ctx).Where("entry_key = ?", key).Delete(&ShieldEntry{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListKeys implements service.Storage.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db(ctx).Model(&ShieldEntry{}).
		Where(`entry_key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Order("entry_key").
		Pluck("entry_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// IncrementWindow implements service.AtomicCounterStore inside a transaction.
// PostgreSQL locks the row with SELECT ... FOR UPDATE; SQLite serialises writers itself.
func (s *Store) IncrementWindow(ctx context.Context, key string, now time.Time, window time.Duration) (models.CounterRecord, error) {
	next := models.NewCounterRecord(now)
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("entry_key = ?", key)
		if s.conn.Driver() == constants.StorageDriverPostgres {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var entry ShieldEntry
		err := q.Take(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			if current, ok := models.DecodeCounterRecord(entry.Value); ok && !current.Expired(now, window) {
				next = models.CounterRecord{Count: current.Count + 1, WindowStart: current.WindowStart}
			}
		}

		raw, err := next.MarshalJSON()
		if err != nil {
			return err
		}
		return upsert(tx, key, raw)
	})
	if err != nil {
		return models.CounterRecord{}, fmt.Errorf("increment %s: %w", key, err)
	}
	return next, nil
}

// Ping implements service.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func upsert(db *gorm.DB, key string, value []byte) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&ShieldEntry{Key: key, Value: value}).Error
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
