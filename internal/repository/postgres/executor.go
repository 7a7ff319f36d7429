package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// executor is satisfied by both *sqlx.DB and *sqlx.Tx.
type executor interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

type txKey struct{}

// TxManager runs fn inside a sqlx transaction carried by ctx.
type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (m *TxManager) Transactional() bool { return true }

func conn(ctx context.Context, db *sqlx.DB) executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

const schema = `
CREATE TABLE IF NOT EXISTS point_account (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL UNIQUE,
	balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS point_transaction (
	id             BIGSERIAL PRIMARY KEY,
	transaction_no VARCHAR(64) NOT NULL UNIQUE,
	user_id        BIGINT NOT NULL,
	amount         BIGINT NOT NULL CHECK (amount > 0),
	type           VARCHAR(20) NOT NULL,
	balance_after  BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_point_transaction_user_id ON point_transaction (user_id, id);
`

// Migrate creates the tables when missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
