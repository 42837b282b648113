package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/pkg/logger"
)

type entry struct {
	result   contracts.ScoreResult
	storedAt time.Time
}

// ScoreCache is the in-process score cache used when Redis is not configured
// ⭐ SSOT: 프로세스 내 점수 캐싱은 이 구조체에서만
type ScoreCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *logger.Logger
}

// NewScoreCache creates a cache whose entries expire after ttl
func NewScoreCache(ttl time.Duration, clock clockwork.Clock, log *logger.Logger) *ScoreCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ScoreCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clock,
		logger:  log.WithModule("score_cache"),
	}
}

// Update stores result unless a result computed later is already cached.
func (c *ScoreCache) Update(result contracts.ScoreResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[result.CompanyID]; ok && result.ComputedAt.Before(existing.result.ComputedAt) {
		c.logger.WithFields(map[string]any{
			"company_id": result.CompanyID,
			"new_time":   result.ComputedAt,
			"old_time":   existing.result.ComputedAt,
		}).Debug("Rejected older score")
		return false
	}

	c.entries[result.CompanyID] = entry{result: result, storedAt: c.clock.Now()}
	return true
}

// Get returns a live entry
func (c *ScoreCache) Get(_ context.Context, companyID string) (contracts.ScoreResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[companyID]
	if !ok || c.expired(e) {
		return contracts.ScoreResult{}, false, nil
	}
	return e.result, true, nil
}

// Set implements the engine's cache contract
func (c *ScoreCache) Set(_ context.Context, result contracts.ScoreResult) error {
	c.Update(result)
	return nil
}

// Delete drops a company's entry
func (c *ScoreCache) Delete(_ context.Context, companyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, companyID)
	return nil
}

// Len returns the number of entries, expired ones included
func (c *ScoreCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CleanStale removes expired entries and returns how many were removed
func (c *ScoreCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, id)
			removed++
		}
	}
	if removed > 0 {
		c.logger.WithField("removed", removed).Debug("Removed stale scores")
	}
	return removed
}

func (c *ScoreCache) expired(e entry) bool {
	return c.ttl > 0 && c.clock.Since(e.storedAt) > c.ttl
}
