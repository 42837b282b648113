package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/intent/internal/scheduler"
	"github.com/wonny/intent/pkg/logger"
)

// PollJob dispatches due (company, source) pairs on every tick
// ⭐ SSOT: 폴링 디스패치 스케줄은 이 Job에서만
type PollJob struct {
	poller *scheduler.Poller
	tick   time.Duration
	logger *logger.Logger
}

// NewPollJob creates a poll job firing every tick
func NewPollJob(poller *scheduler.Poller, tick time.Duration, log *logger.Logger) *PollJob {
	return &PollJob{poller: poller, tick: tick, logger: log}
}

// Name returns the job name
func (j *PollJob) Name() string {
	return "poll_dispatch"
}

// Schedule returns "@every <tick>"
func (j *PollJob) Schedule() string {
	return fmt.Sprintf("@every %s", j.tick)
}

// Run dispatches due pairs. A stopped poller is not an error.
func (j *PollJob) Run(ctx context.Context) error {
	n, err := j.poller.Tick(ctx)
	if errors.Is(err, scheduler.ErrPollerStopped) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("poll tick: %w", err)
	}
	if n > 0 {
		j.logger.WithField("dispatched", n).Debug("Dispatched due pairs")
	}
	return nil
}
