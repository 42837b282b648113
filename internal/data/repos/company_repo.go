package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/intent/internal/contracts"
)

// CompanyRepository implements contracts.CompanyStore on PostgreSQL
type CompanyRepository struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepository {
	return &CompanyRepository{pool: pool}
}

// Save inserts or refreshes a company; the id never changes
func (r *CompanyRepository) Save(ctx context.Context, c contracts.Company) error {
	handles := c.Handles
	if handles == nil {
		handles = map[string]string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO intent.companies (id, name, industry, size_bucket, handles)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name        = EXCLUDED.name,
			industry    = EXCLUDED.industry,
			size_bucket = EXCLUDED.size_bucket,
			handles     = EXCLUDED.handles,
			updated_at  = now()
	`, c.ID, c.Name, c.Industry, c.SizeBucket, handles)
	if err != nil {
		return classify("save company", err)
	}
	return nil
}

// Get returns one company or contracts.ErrNotFound
func (r *CompanyRepository) Get(ctx context.Context, id string) (contracts.Company, error) {
	var c contracts.Company
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, industry, size_bucket, handles
		FROM intent.companies
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Industry, &c.SizeBucket, &c.Handles)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.Company{}, fmt.Errorf("company %s: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return contracts.Company{}, classify("get company", err)
	}
	return c, nil
}

// List returns every company ordered by id
func (r *CompanyRepository) List(ctx context.Context) ([]contracts.Company, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, industry, size_bucket, handles
		FROM intent.companies
		ORDER BY id
	`)
	if err != nil {
		return nil, classify("list companies", err)
	}
	defer rows.Close()

	var out []contracts.Company
	for rows.Next() {
		var c contracts.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Industry, &c.SizeBucket, &c.Handles); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate companies", err)
	}
	return out, nil
}

// Delete removes a company. Its signals are kept.
func (r *CompanyRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM intent.companies WHERE id = $1`, id)
	if err != nil {
		return classify("delete company", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("company %s: %w", id, contracts.ErrNotFound)
	}
	return nil
}
