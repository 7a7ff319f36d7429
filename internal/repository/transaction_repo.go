package repository

import (
	"context"

	"pointsystem/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository is the MySQL HistoryStore.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Append(ctx context.Context, trans *model.PointTransaction) (*model.PointTransaction, error) {
	stored := *trans
	stored.ID = 0
	if err := GetTx(ctx, r.db).Create(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.PointTransaction, error) {
	transactions := make([]*model.PointTransaction, 0)
	err := GetTx(ctx, r.db).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}
