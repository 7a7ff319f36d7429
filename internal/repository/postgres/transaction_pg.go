package postgres

import (
	"context"
	"fmt"

	"pointsystem/internal/model"

	"github.com/jmoiron/sqlx"
)

// TransactionRepository is the PostgreSQL HistoryStore.
type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Append(ctx context.Context, trans *model.PointTransaction) (*model.PointTransaction, error) {
	stored := *trans
	query := `INSERT INTO point_transaction (transaction_no, user_id, amount, type, balance_after, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		stored.TransactionNo, stored.UserID, stored.Amount, string(stored.Type), stored.BalanceAfter, stored.CreatedAt,
	).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("postgres: append transaction for user %d: %w", trans.UserID, err)
	}
	return &stored, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.PointTransaction, error) {
	transactions := make([]*model.PointTransaction, 0)
	query := `SELECT id, transaction_no, user_id, amount, type, balance_after, created_at
	          FROM point_transaction WHERE user_id = $1 ORDER BY id ASC`
	if err := conn(ctx, r.db).SelectContext(ctx, &transactions, query, userID); err != nil {
		return nil, fmt.Errorf("postgres: list transactions for user %d: %w", userID, err)
	}
	return transactions, nil
}
