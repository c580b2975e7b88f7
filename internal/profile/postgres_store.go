package profile

import (
	"context"
	"database/sql"
)

// PostgresStore persists buyer profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, pr *Profile) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO buyer_profiles (
			subject, name, platform_id, domain_id, verified, api_key_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject) DO UPDATE SET
			name = EXCLUDED.name,
			platform_id = EXCLUDED.platform_id,
			domain_id = EXCLUDED.domain_id,
			verified = EXCLUDED.verified,
			api_key_hash = EXCLUDED.api_key_hash`,
		pr.Subject, pr.Name, pr.PlatformID, pr.DomainID, pr.Verified, pr.APIKeyHash, pr.CreatedAt,
	)
	return err
}

func (p *PostgresStore) FindVerifiedBuyer(ctx context.Context, subject string) (*Profile, error) {
	pr, err := scanProfile(p.db.QueryRowContext(ctx, `
		SELECT subject, name, platform_id, domain_id, verified, api_key_hash, created_at
		FROM buyer_profiles
		WHERE subject = $1 AND verified = TRUE`, subject))
	if err == sql.ErrNoRows {
		return nil, ErrNoProfile
	}
	return pr, err
}

func (p *PostgresStore) FindByAPIKeyHash(ctx context.Context, hash string) (*Profile, error) {
	pr, err := scanProfile(p.db.QueryRowContext(ctx, `
		SELECT subject, name, platform_id, domain_id, verified, api_key_hash, created_at
		FROM buyer_profiles
		WHERE api_key_hash = $1`, hash))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return pr, err
}

func scanProfile(row *sql.Row) (*Profile, error) {
	var pr Profile
	var keyHash sql.NullString
	if err := row.Scan(&pr.Subject, &pr.Name, &pr.PlatformID, &pr.DomainID,
		&pr.Verified, &keyHash, &pr.CreatedAt); err != nil {
		return nil, err
	}
	pr.APIKeyHash = keyHash.String
	return &pr, nil
}

// Compile-time assertion.
var _ Store = (*PostgresStore)(nil)
