package repository

import (
	"context"
	"errors"
	"time"

	"pointsystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepository is the MySQL AccountStore.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := GetTx(ctx, r.db).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) Create(ctx context.Context, userID int64, at time.Time) (*model.Account, error) {
	account := &model.Account{
		UserID:    userID,
		CreatedAt: at,
		UpdatedAt: at,
	}

	result := GetTx(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(account)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAccountExists
	}
	return account, nil
}

func (r *AccountRepository) Save(ctx context.Context, userID, balance int64, at time.Time) (*model.Account, error) {
	db := GetTx(ctx, r.db)
	result := db.Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":    balance,
			"updated_at": at,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	// MySQL counts unchanged rows as unaffected, so existence is decided by reading back.
	return r.Get(ctx, userID)
}
