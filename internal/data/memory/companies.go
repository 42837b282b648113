package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/wonny/intent/internal/contracts"
)

// CompanyStore is an in-process contracts.CompanyStore
type CompanyStore struct {
	mu        sync.RWMutex
	companies map[string]contracts.Company
}

// NewCompanyStore creates an empty store
func NewCompanyStore() *CompanyStore {
	return &CompanyStore{companies: make(map[string]contracts.Company)}
}

// Save inserts or replaces a company
func (s *CompanyStore) Save(ctx context.Context, company contracts.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	company.Handles = maps.Clone(company.Handles)
	s.companies[company.ID] = company
	return nil
}

// Get returns a company or contracts.ErrNotFound
func (s *CompanyStore) Get(ctx context.Context, id string) (contracts.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return contracts.Company{}, fmt.Errorf("company %s: %w", id, contracts.ErrNotFound)
	}
	return c, nil
}

// List returns all companies ordered by id
func (s *CompanyStore) List(ctx context.Context) ([]contracts.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.Company, 0, len(s.companies))
	for _, id := range slices.Sorted(maps.Keys(s.companies)) {
		out = append(out, s.companies[id])
	}
	return out, nil
}

// Delete removes a company; deleting an unknown id returns contracts.ErrNotFound
func (s *CompanyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[id]; !ok {
		return fmt.Errorf("company %s: %w", id, contracts.ErrNotFound)
	}
	delete(s.companies, id)
	return nil
}
