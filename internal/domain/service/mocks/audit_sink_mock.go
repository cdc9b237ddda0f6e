package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/apishield/internal/domain/models"
)

// MockAuditSink is a mock implementation of service.AuditSink
type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) Record(ctx context.Context, attempt *models.AttemptRecord) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}
