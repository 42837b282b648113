package contracts

import (
	"context"
	"time"
)

// Adapter fetches raw observations about one company from one external source.
// Implementations own pagination and payload mapping and return typed errors
// (see SourceError). They never see scoring weights.
// ⭐ SSOT: the only contract between the engine and a concrete source
type Adapter interface {
	Fetch(ctx context.Context, company Company, terms []string, since time.Time) ([]RawObservation, error)
}

// AdapterFunc lets a plain function satisfy Adapter
type AdapterFunc func(ctx context.Context, company Company, terms []string, since time.Time) ([]RawObservation, error)

// Fetch calls f
func (f AdapterFunc) Fetch(ctx context.Context, company Company, terms []string, since time.Time) ([]RawObservation, error) {
	return f(ctx, company, terms, since)
}

// SignalStore persists signals. Implementations wrap connectivity failures in ErrStoreUnavailable.
type SignalStore interface {
	// Upsert inserts sig or merges it into the stored row with the same ID atomically.
	Upsert(ctx context.Context, sig Signal) (UpsertOutcome, error)

	// Snapshot returns every signal of a company as one consistent read.
	Snapshot(ctx context.Context, companyID string) ([]Signal, error)

	// Page returns up to limit signals observed at or after since, ordered by
	// (observed_at, id) and strictly after the cursor when one is given.
	Page(ctx context.Context, companyID string, since time.Time, after *SignalCursor, limit int) ([]Signal, error)
}

// CompanyStore persists the set of tracked companies.
type CompanyStore interface {
	Save(ctx context.Context, company Company) error
	Get(ctx context.Context, id string) (Company, error)
	List(ctx context.Context) ([]Company, error)
	Delete(ctx context.Context, id string) error
}
