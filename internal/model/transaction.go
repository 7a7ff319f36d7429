package model

import (
	"time"
)

// ============================================================================
// Transaction types
// ============================================================================

// TransactionType is the direction of a balance change.
type TransactionType string

const (
	TransactionTypeCharge TransactionType = "CHARGE"
	TransactionTypeUse    TransactionType = "USE"
)

// Valid reports whether t is CHARGE or USE.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeCharge || t == TransactionTypeUse
}

// Sign is +1 for charges and -1 for uses.
func (t TransactionType) Sign() int64 {
	if t == TransactionTypeUse {
		return -1
	}
	return 1
}

// ============================================================================
// Point history entity
// ============================================================================

// PointTransaction is one entry of a user's point history.
// Rows are append-only: never updated, never deleted.
type PointTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id" db:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no" db:"transaction_no"`
	UserID        int64           `gorm:"index;not null" json:"user_id" db:"user_id"`
	Amount        int64           `gorm:"not null" json:"amount" db:"amount"` // always positive, see Type
	Type          TransactionType `gorm:"type:varchar(20);not null" json:"type" db:"type"`
	BalanceAfter  int64           `gorm:"not null" json:"balance_after" db:"balance_after"`
	CreatedAt     time.Time       `gorm:"autoCreateTime:false;not null" json:"created_at" db:"created_at"`
}

func (PointTransaction) TableName() string {
	return "point_transaction"
}

// TimeMillis is CreatedAt as unix milliseconds.
func (t *PointTransaction) TimeMillis() int64 {
	return t.CreatedAt.UnixMilli()
}

// Delta is the signed change this entry applied to the balance.
func (t *PointTransaction) Delta() int64 {
	return t.Type.Sign() * t.Amount
}
