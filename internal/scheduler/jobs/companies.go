package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/intent/internal/companies"
	"github.com/wonny/intent/internal/scheduler"
	"github.com/wonny/intent/pkg/logger"
)

// CompanySyncJob keeps the poller's pair set in line with the company registry
type CompanySyncJob struct {
	registry *companies.Registry
	poller   *scheduler.Poller
	logger   *logger.Logger
}

// NewCompanySyncJob creates a new company sync job
func NewCompanySyncJob(registry *companies.Registry, poller *scheduler.Poller, log *logger.Logger) *CompanySyncJob {
	return &CompanySyncJob{registry: registry, poller: poller, logger: log}
}

// Name returns the job name
func (j *CompanySyncJob) Name() string {
	return "company_sync"
}

// Schedule returns the cron schedule (every minute)
func (j *CompanySyncJob) Schedule() string {
	return "30 * * * * *"
}

// Run executes the sync
func (j *CompanySyncJob) Run(ctx context.Context) error {
	list, err := j.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list companies: %w", err)
	}
	j.poller.Sync(list)
	return nil
}
