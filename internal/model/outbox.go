package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage is a history event waiting to be published.
type OutboxMessage struct {
	MessageKey string
	Topic      string
	Payload    []byte
	Status     string
	RetryCount int
	CreatedAt  time.Time
}

// PointEvent is the published form of a PointTransaction.
type PointEvent struct {
	EventNo       string          `json:"event_no"`
	TransactionID int64           `json:"transaction_id"`
	TransactionNo string          `json:"transaction_no"`
	UserID        int64           `json:"user_id"`
	Amount        int64           `json:"amount"`
	Type          TransactionType `json:"type"`
	BalanceAfter  int64           `json:"balance_after"`
	TimeMillis    int64           `json:"time_millis"`
}
