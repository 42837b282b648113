package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/intent/internal/contracts"
)

// SignalRepository implements contracts.SignalStore on PostgreSQL
// ⭐ SSOT: signal rows are written and read only here
type SignalRepository struct {
	pool *pgxpool.Pool
}

// NewSignalRepository creates a new signal repository
func NewSignalRepository(pool *pgxpool.Pool) *SignalRepository {
	return &SignalRepository{pool: pool}
}

const signalColumns = `id::text, company_id, source, category, dedup_key, observed_at, collected_at, confidence, payload, seen_count`

// Upsert inserts the signal or merges it into the existing row in one statement,
// following contracts.Signal.Merge. xmax = 0 only for freshly inserted tuples.
func (r *SignalRepository) Upsert(ctx context.Context, sig contracts.Signal) (contracts.UpsertOutcome, error) {
	query := `
		INSERT INTO intent.signals
			(id, company_id, source, category, dedup_key, observed_at, collected_at, confidence, payload, seen_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, GREATEST($10::int, 1))
		ON CONFLICT (id) DO UPDATE SET
			collected_at = GREATEST(intent.signals.collected_at, EXCLUDED.collected_at),
			confidence   = GREATEST(intent.signals.confidence, EXCLUDED.confidence),
			seen_count   = intent.signals.seen_count + EXCLUDED.seen_count
		RETURNING (xmax = 0) AS inserted
	`

	payload := sig.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		sig.ID,
		sig.CompanyID,
		string(sig.Source),
		string(sig.Category),
		sig.DedupKey,
		sig.ObservedAt,
		sig.CollectedAt,
		sig.Confidence,
		payload,
		sig.SeenCount,
	).Scan(&inserted)
	if err != nil {
		return 0, classify("upsert signal", err)
	}

	if inserted {
		return contracts.UpsertInserted, nil
	}
	return contracts.UpsertUpdated, nil
}

// Snapshot reads every signal of a company in a single statement
func (r *SignalRepository) Snapshot(ctx context.Context, companyID string) ([]contracts.Signal, error) {
	query := `SELECT ` + signalColumns + `
		FROM intent.signals
		WHERE company_id = $1
		ORDER BY observed_at, id
	`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, classify("query signals", err)
	}
	return collectSignals(rows)
}

// Page reads a keyset page ordered by (observed_at, id)
func (r *SignalRepository) Page(ctx context.Context, companyID string, since time.Time, after *contracts.SignalCursor, limit int) ([]contracts.Signal, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if after == nil {
		rows, err = r.pool.Query(ctx, `SELECT `+signalColumns+`
			FROM intent.signals
			WHERE company_id = $1 AND observed_at >= $2
			ORDER BY observed_at, id
			LIMIT $3
		`, companyID, since, limit)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+signalColumns+`
			FROM intent.signals
			WHERE company_id = $1 AND observed_at >= $2
			  AND (observed_at, id) > ($3, $4::uuid)
			ORDER BY observed_at, id
			LIMIT $5
		`, companyID, since, after.ObservedAt, after.ID, limit)
	}
	if err != nil {
		return nil, classify("page signals", err)
	}
	return collectSignals(rows)
}

func collectSignals(rows pgx.Rows) ([]contracts.Signal, error) {
	defer rows.Close()

	var out []contracts.Signal
	for rows.Next() {
		var (
			s                contracts.Signal
			source, category string
		)
		err := rows.Scan(
			&s.ID,
			&s.CompanyID,
			&source,
			&category,
			&s.DedupKey,
			&s.ObservedAt,
			&s.CollectedAt,
			&s.Confidence,
			&s.Payload,
			&s.SeenCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		s.Source = contracts.Source(source)
		s.Category = contracts.Category(category)
		s.ObservedAt = s.ObservedAt.UTC()
		s.CollectedAt = s.CollectedAt.UTC()
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate signals", err)
	}
	return out, nil
}

// classify keeps server-side errors (constraint violations, bad SQL) as plain
// errors and marks everything else as the store being unreachable.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return contracts.StoreError(op, err)
}
