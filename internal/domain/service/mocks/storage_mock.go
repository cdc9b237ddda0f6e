package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/apishield/internal/domain/models"
)

// MockStorage is a mock implementation of service.Storage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockStorage) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockStorage) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockAtomicStorage adds IncrementWindow to MockStorage
type MockAtomicStorage struct {
	MockStorage
}

func (m *MockAtomicStorage) IncrementWindow(ctx context.Context, key string, now time.Time, window time.Duration) (models.CounterRecord, error) {
	args := m.Called(ctx, key, now, window)
	return args.Get(0).(models.CounterRecord), args.Error(1)
}
