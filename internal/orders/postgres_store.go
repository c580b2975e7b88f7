package orders

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists order records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Save(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (
			transaction_id, order_id, status, total_quantity, total_cost, payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (transaction_id) DO UPDATE SET
			order_id = EXCLUDED.order_id,
			status = EXCLUDED.status,
			total_quantity = EXCLUDED.total_quantity,
			total_cost = EXCLUDED.total_cost,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		rec.TransactionID, rec.OrderID, rec.Status, rec.TotalQuantity, rec.TotalCost, []byte(rec.Payload), now,
	)
	return err
}

func (p *PostgresStore) FindByTransactionID(ctx context.Context, transactionID string) (*Record, error) {
	var rec Record
	var payload []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT transaction_id, order_id, status, total_quantity, total_cost, payload, created_at, updated_at
		FROM orders
		WHERE transaction_id = $1`, transactionID,
	).Scan(&rec.TransactionID, &rec.OrderID, &rec.Status, &rec.TotalQuantity, &rec.TotalCost, &payload, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Payload = payload
	return &rec, nil
}

var _ Store = (*PostgresStore)(nil)
