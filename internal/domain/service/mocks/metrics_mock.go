package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/constants"
)

// MockMetrics is a mock implementation of service.Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordAdmission(reason constants.AdmissionReason, kind models.MatchKind, duration time.Duration) {
	m.Called(reason, kind, duration)
}

func (m *MockMetrics) RecordBan(kind models.MatchKind) {
	m.Called(kind)
}

func (m *MockMetrics) RecordSweep(kind string, removed int) {
	m.Called(kind, removed)
}

func (m *MockMetrics) RecordStorageError(op string) {
	m.Called(op)
}
