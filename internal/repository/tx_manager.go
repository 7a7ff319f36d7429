package repository

import (
	"context"

	"gorm.io/gorm"
)

type gormTxKey struct{}

// TransactionManager runs fn inside a gorm transaction carried by ctx.
type TransactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

func (tm *TransactionManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, gormTxKey{}, tx))
	})
}

func (tm *TransactionManager) Transactional() bool { return true }

// GetTx returns the transaction in ctx, or db when there is none.
func GetTx(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(gormTxKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
