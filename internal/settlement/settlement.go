// Package settlement records the per-party settlement entries produced
// when a trade is confirmed. Exactly one record exists per
// (transaction id, party role) pair.
package settlement

import (
	"context"
	"errors"
	"time"
)

var ErrDuplicate = errors.New("settlement already recorded for this transaction and role")

// Party roles settled per confirmed trade.
const (
	RoleBuyer  = "BUYER"
	RoleSeller = "SELLER"
)

// Record is one party's settlement entry for a confirmed trade.
type Record struct {
	ID                     string    `json:"id"`
	TransactionID          string    `json:"transactionId"`
	ItemRef                string    `json:"itemRef,omitempty"`
	Quantity               float64   `json:"quantity"` // kWh
	Amount                 string    `json:"amount,omitempty"`
	Role                   string    `json:"role"`
	CounterpartyPlatformID string    `json:"counterpartyPlatformId"`
	CounterpartyDomainID   string    `json:"counterpartyDomainId"`
	CreatedAt              time.Time `json:"createdAt"`
}

// Store persists settlement records. Create fails with ErrDuplicate when
// a record already exists for the (transaction id, role) key.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	FindByTransactionID(ctx context.Context, transactionID string) ([]*Record, error)
}
