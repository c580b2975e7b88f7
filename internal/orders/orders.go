// Package orders persists the canonical record of confirmed orders.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("order not found")

// Record is the stored view of an order, keyed by the transaction id of
// the exchange that confirmed it.
type Record struct {
	TransactionID string          `json:"transactionId"`
	OrderID       string          `json:"orderId,omitempty"`
	Status        string          `json:"status"`
	TotalQuantity float64         `json:"totalQuantity"` // kWh
	TotalCost     string          `json:"totalCost"`     // decimal string
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Store persists order records. Save upserts on transaction id so a
// re-delivered confirmation refreshes rather than duplicates.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	FindByTransactionID(ctx context.Context, transactionID string) (*Record, error)
}
