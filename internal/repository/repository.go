package repository

import (
	"context"
	"errors"
	"time"

	"pointsystem/internal/model"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// AccountStore keeps the current balance per user. Each call is atomic on
// its own; callers serialize read-modify-write sequences per user.
type AccountStore interface {
	// Get returns ErrAccountNotFound for unknown users.
	Get(ctx context.Context, userID int64) (*model.Account, error)
	// Create provisions a zero balance account, or returns ErrAccountExists.
	Create(ctx context.Context, userID int64, at time.Time) (*model.Account, error)
	// Save sets the balance of an existing account.
	Save(ctx context.Context, userID, balance int64, at time.Time) (*model.Account, error)
}

// HistoryStore is the append-only log of point transactions.
type HistoryStore interface {
	// Append assigns trans.ID, which is unique and increases with every append.
	Append(ctx context.Context, trans *model.PointTransaction) (*model.PointTransaction, error)
	// ListByUserID returns the user's entries ordered by ID.
	ListByUserID(ctx context.Context, userID int64) ([]*model.PointTransaction, error)
}

// TxManager runs fn so that store calls made with the ctx passed to fn
// commit together or not at all.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Transactional is false when WithTx cannot roll back, so callers must
	// undo partial writes themselves.
	Transactional() bool
}

// NopTxManager runs fn directly, for stores whose calls are only atomic one by one.
type NopTxManager struct{}

func (NopTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (NopTxManager) Transactional() bool { return false }
