package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pointsystem/internal/model"
	"pointsystem/internal/repository"

	"github.com/jmoiron/sqlx"
)

const accountColumns = `id, user_id, balance, created_at, updated_at`

// AccountRepository is the PostgreSQL AccountStore.
type AccountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	query := `SELECT ` + accountColumns + ` FROM point_account WHERE user_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &account, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres: get account %d: %w", userID, err)
	}
	return &account, nil
}

func (r *AccountRepository) Create(ctx context.Context, userID int64, at time.Time) (*model.Account, error) {
	var account model.Account
	query := `INSERT INTO point_account (user_id, balance, created_at, updated_at)
	          VALUES ($1, 0, $2, $2)
	          ON CONFLICT (user_id) DO NOTHING
	          RETURNING ` + accountColumns
	if err := conn(ctx, r.db).GetContext(ctx, &account, query, userID, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrAccountExists
		}
		return nil, fmt.Errorf("postgres: create account %d: %w", userID, err)
	}
	return &account, nil
}

func (r *AccountRepository) Save(ctx context.Context, userID, balance int64, at time.Time) (*model.Account, error) {
	var account model.Account
	query := `UPDATE point_account SET balance = $1, updated_at = $2
	          WHERE user_id = $3
	          RETURNING ` + accountColumns
	if err := conn(ctx, r.db).GetContext(ctx, &account, query, balance, at, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres: save account %d: %w", userID, err)
	}
	return &account, nil
}
