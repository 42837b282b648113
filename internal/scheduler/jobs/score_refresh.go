package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/intent/internal/engine"
	"github.com/wonny/intent/pkg/logger"
)

// ScoreRefreshJob rescores every company so decay is reflected without new signals
type ScoreRefreshJob struct {
	engine   *engine.Engine
	schedule string
	logger   *logger.Logger
}

// NewScoreRefreshJob creates a score refresh job on the given cron spec
func NewScoreRefreshJob(e *engine.Engine, schedule string, log *logger.Logger) *ScoreRefreshJob {
	return &ScoreRefreshJob{engine: e, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *ScoreRefreshJob) Name() string {
	return "score_refresh"
}

// Schedule returns the configured cron spec
func (j *ScoreRefreshJob) Schedule() string {
	return j.schedule
}

// MaxRetries retries a failed pass once
func (j *ScoreRefreshJob) MaxRetries() int {
	return 1
}

// Run executes the refresh
func (j *ScoreRefreshJob) Run(ctx context.Context) error {
	n, err := j.engine.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh scores (%d done): %w", n, err)
	}
	j.logger.WithField("companies", n).Info("Scores refreshed")
	return nil
}
