package jobs

import (
	"context"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/realtime/cache"
	"github.com/wonny/intent/pkg/logger"
)

// HealthSource reports per-source breaker snapshots
type HealthSource interface {
	Health() []contracts.SourceHealth
}

// HealthReportJob logs every source whose circuit is not closed
type HealthReportJob struct {
	sources  HealthSource
	schedule string
	logger   *logger.Logger
}

// NewHealthReportJob creates a health report job on the given cron spec
func NewHealthReportJob(sources HealthSource, schedule string, log *logger.Logger) *HealthReportJob {
	return &HealthReportJob{sources: sources, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *HealthReportJob) Name() string {
	return "health_report"
}

// Schedule returns the configured cron spec
func (j *HealthReportJob) Schedule() string {
	return j.schedule
}

// Run logs the report. It never fails.
func (j *HealthReportJob) Run(ctx context.Context) error {
	degraded := 0
	for _, h := range j.sources.Health() {
		if h.State == contracts.CircuitClosed && !h.Disabled {
			continue
		}
		degraded++
		j.logger.WithFields(map[string]any{
			"source":               h.Source,
			"state":                h.State,
			"disabled":             h.Disabled,
			"consecutive_failures": h.ConsecutiveFailures,
			"next_retry_at":        h.NextRetryAt,
			"last_error":           h.LastError,
		}).Warn("Source degraded")
	}
	if degraded == 0 {
		j.logger.Debug("All sources healthy")
	}
	return nil
}

// CacheCleanupJob drops expired entries from the in-process score cache
type CacheCleanupJob struct {
	cache  *cache.ScoreCache
	logger *logger.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(scoreCache *cache.ScoreCache, log *logger.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{cache: scoreCache, logger: log}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *CacheCleanupJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run executes the cache cleanup
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	if n := j.cache.CleanStale(); n > 0 {
		j.logger.WithField("removed", n).Info("Cache cleanup completed")
	}
	return nil
}
