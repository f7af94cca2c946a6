package mocks

import (
	"context"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockRuleRepository is a mock implementation of persistence.RuleRepository interface.
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) ActiveRules(ctx context.Context) ([]*models.RuleDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RuleDefinition), args.Error(1)
}

func (m *MockRuleRepository) Rules(ctx context.Context) ([]*models.RuleDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RuleDefinition), args.Error(1)
}

func (m *MockRuleRepository) SaveRule(ctx context.Context, rule *models.RuleDefinition) error {
	args := m.Called(ctx, rule)

	return args.Error(0)
}

// MockLedger is a mock implementation of persistence.Ledger interface.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Exists(ctx context.Context, key models.OccurrenceKey) (bool, error) {
	args := m.Called(ctx, key)

	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Reserve(ctx context.Context, key models.OccurrenceKey) (persistence.Reservation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(persistence.Reservation), args.Error(1)
}

func (m *MockLedger) Records(ctx context.Context, ruleID string) ([]*models.ExecutionRecord, error) {
	args := m.Called(ctx, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionRecord), args.Error(1)
}

func (m *MockLedger) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockLedger) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockReservation is a mock implementation of persistence.Reservation interface.
type MockReservation struct {
	mock.Mock
}

func (m *MockReservation) Commit(ctx context.Context, record *models.ExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockReservation) Release(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
