package domain

import (
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order mirrors the host's order record. This service only ever reads the
// identity/amount fields and mutates status, notes and the Bitmarket metadata.
type Order struct {
	ID          string
	Key         string
	Amount      string
	Currency    string
	Status      OrderStatus
	BitmarketID string
	PayerEmail  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderNote struct {
	OrderID   string
	Note      string
	CreatedAt time.Time
}
