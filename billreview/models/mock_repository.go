package models

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

var _ Repository = &MockRepository{}

func (m *MockRepository) GetProcCategories(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetOrderLines(ctx context.Context, orderID string) ([]OrderLine, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]OrderLine), args.Error(1)
}

func (m *MockRepository) GetProviderDetails(ctx context.Context, orderID string) (*Provider, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Provider), args.Error(1)
}

func (m *MockRepository) IsBundledOrder(ctx context.Context, orderID string) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) GetPPORate(ctx context.Context, tin, procCd string) (*decimal.Decimal, error) {
	args := m.Called(ctx, tin, procCd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decimal.Decimal), args.Error(1)
}

func (m *MockRepository) GetOTARate(ctx context.Context, orderID, cpt string) (*decimal.Decimal, error) {
	args := m.Called(ctx, orderID, cpt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decimal.Decimal), args.Error(1)
}
