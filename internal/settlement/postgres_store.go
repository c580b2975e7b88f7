package settlement

import (
	"context"
	"database/sql"
	"time"

	"github.com/onixgrid/bapbridge/internal/idgen"
)

// PostgresStore persists settlement records in PostgreSQL. The
// (transaction_id, role) uniqueness is enforced by a constraint, so
// concurrent duplicate confirmations collapse to one row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, rec *Record) error {
	id := rec.ID
	if id == "" {
		id = idgen.WithPrefix("stl_")
	}
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO settlements (
			id, transaction_id, item_ref, quantity, amount, role,
			counterparty_platform_id, counterparty_domain_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id, role) DO NOTHING`,
		id, rec.TransactionID, rec.ItemRef, rec.Quantity, rec.Amount, rec.Role,
		rec.CounterpartyPlatformID, rec.CounterpartyDomainID, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (p *PostgresStore) FindByTransactionID(ctx context.Context, transactionID string) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, transaction_id, item_ref, quantity, amount, role,
		       counterparty_platform_id, counterparty_domain_id, created_at
		FROM settlements
		WHERE transaction_id = $1
		ORDER BY created_at`, transactionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.ItemRef, &rec.Quantity, &rec.Amount,
			&rec.Role, &rec.CounterpartyPlatformID, &rec.CounterpartyDomainID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
