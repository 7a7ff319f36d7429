package model

import (
	"time"
)

// Account holds the current point balance of one user.
// Balance is only ever changed by the point service, under the user's lock.
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id" db:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id" db:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance" db:"balance"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at" db:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at" db:"updated_at"`
}

func (Account) TableName() string {
	return "point_account"
}

// UpdateMillis is the last balance change as unix milliseconds.
func (a *Account) UpdateMillis() int64 {
	return a.UpdatedAt.UnixMilli()
}
