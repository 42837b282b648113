package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/wonny/intent/internal/contracts"
)

// SignalStore is an in-process contracts.SignalStore.
// Upserts hold the write lock, so concurrent re-observations of one id converge.
type SignalStore struct {
	mu      sync.RWMutex
	signals map[string]map[string]contracts.Signal // company_id → id → signal
}

// NewSignalStore creates an empty store
func NewSignalStore() *SignalStore {
	return &SignalStore{signals: make(map[string]map[string]contracts.Signal)}
}

// Upsert implements contracts.SignalStore
func (s *SignalStore) Upsert(ctx context.Context, sig contracts.Signal) (contracts.UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.signals[sig.CompanyID]
	if !ok {
		byID = make(map[string]contracts.Signal)
		s.signals[sig.CompanyID] = byID
	}

	if existing, ok := byID[sig.ID]; ok {
		byID[sig.ID] = existing.Merge(sig)
		return contracts.UpsertUpdated, nil
	}

	if sig.SeenCount < 1 {
		sig.SeenCount = 1
	}
	sig.Payload = slices.Clone(sig.Payload)
	byID[sig.ID] = sig
	return contracts.UpsertInserted, nil
}

// Snapshot implements contracts.SignalStore
func (s *SignalStore) Snapshot(ctx context.Context, companyID string) ([]contracts.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]contracts.Signal, 0, len(s.signals[companyID]))
	for _, sig := range s.signals[companyID] {
		out = append(out, sig)
	}
	s.mu.RUnlock()

	sortSignals(out)
	return out, nil
}

// Page implements contracts.SignalStore
func (s *SignalStore) Page(ctx context.Context, companyID string, since time.Time, after *contracts.SignalCursor, limit int) ([]contracts.Signal, error) {
	all, err := s.Snapshot(ctx, companyID)
	if err != nil {
		return nil, err
	}

	out := make([]contracts.Signal, 0, limit)
	for _, sig := range all {
		if sig.ObservedAt.Before(since) {
			continue
		}
		if after != nil && !after.After(sig) {
			continue
		}
		out = append(out, sig)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored signals of a company
func (s *SignalStore) Len(companyID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signals[companyID])
}

func sortSignals(signals []contracts.Signal) {
	slices.SortFunc(signals, func(a, b contracts.Signal) int {
		if c := a.ObservedAt.Compare(b.ObservedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
