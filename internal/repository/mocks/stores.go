package mocks

import (
	"context"
	"time"

	"pointsystem/internal/model"

	"github.com/stretchr/testify/mock"
)

type AccountStore struct {
	mock.Mock
}

func (m *AccountStore) Get(ctx context.Context, userID int64) (*model.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *AccountStore) Create(ctx context.Context, userID int64, at time.Time) (*model.Account, error) {
	args := m.Called(ctx, userID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *AccountStore) Save(ctx context.Context, userID, balance int64, at time.Time) (*model.Account, error) {
	args := m.Called(ctx, userID, balance, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

type HistoryStore struct {
	mock.Mock
}

func (m *HistoryStore) Append(ctx context.Context, trans *model.PointTransaction) (*model.PointTransaction, error) {
	args := m.Called(ctx, trans)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PointTransaction), args.Error(1)
}

func (m *HistoryStore) ListByUserID(ctx context.Context, userID int64) ([]*model.PointTransaction, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PointTransaction), args.Error(1)
}

// TxManager records WithTx and then runs fn, unless an error is configured.
type TxManager struct {
	mock.Mock
}

func (t *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := t.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// Transactional is always true; the mock stands in for a rolling-back store.
func (t *TxManager) Transactional() bool { return true }
