package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wonny/intent/internal/collector"
	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/intentconfig"
	"github.com/wonny/intent/internal/limiter"
	"github.com/wonny/intent/pkg/logger"
)

// ErrPollerStopped is returned by Tick after Stop
var ErrPollerStopped = errors.New("poller stopped")

const defaultStoreRetry = time.Minute

// PairCollector polls one (company, source) pair
type PairCollector interface {
	CollectSource(ctx context.Context, company contracts.Company, source contracts.Source) (collector.Outcome, error)
	Sources() []contracts.Source
}

type pairKey struct {
	company string
	source  contracts.Source
}

type pair struct {
	company  contracts.Company
	nextDue  time.Time
	inFlight bool
	lastRun  time.Time
	lastErr  string
}

// PairStatus is a snapshot of one scheduled pair
type PairStatus struct {
	CompanyID string           `json:"company_id"`
	Source    contracts.Source `json:"source"`
	NextDue   time.Time        `json:"next_due"`
	InFlight  bool             `json:"in_flight"`
	LastRun   time.Time        `json:"last_run,omitzero"`
	LastError string           `json:"last_error,omitempty"`
}

// PollerStats counts dispatch decisions since start
type PollerStats struct {
	Pairs       int   `json:"pairs"`
	InFlight    int   `json:"in_flight"`
	Dispatched  int64 `json:"dispatched"`
	Completed   int64 `json:"completed"`
	Failures    int64 `json:"failures"`
	SkippedOpen int64 `json:"skipped_open"`
	SkippedBusy int64 `json:"skipped_busy"`
}

// Poller keeps a next-due time per (company, source) pair and feeds due pairs
// to a fixed pool of workers. A pair is never dispatched while a poll of it is
// in flight, so polls of one pair run in submission order.
type Poller struct {
	collector  PairCollector
	guards     *limiter.Registry
	policy     *intentconfig.Policy
	clock      clockwork.Clock
	logger     *logger.Logger
	workers    int
	storeRetry time.Duration

	mu       sync.Mutex
	pairs    map[pairKey]*pair
	due      *dueQueue
	queue    chan pairKey
	started  bool
	stopped  bool
	halted   error
	haltedAt time.Time
	wg       sync.WaitGroup

	onOutcome func(ctx context.Context, company contracts.Company, out collector.Outcome)

	dispatched  atomic.Int64
	completed   atomic.Int64
	failures    atomic.Int64
	skippedOpen atomic.Int64
	skippedBusy atomic.Int64
}

// NewPoller creates a poller with policy.Scheduler.Workers workers
func NewPoller(c PairCollector, guards *limiter.Registry, policy *intentconfig.Policy, clock clockwork.Clock, log *logger.Logger) *Poller {
	workers := max(policy.Scheduler.Workers, 1)
	storeRetry := policy.Scheduler.StoreRetry.Std()
	if storeRetry <= 0 {
		storeRetry = defaultStoreRetry
	}
	return &Poller{
		collector:  c,
		guards:     guards,
		policy:     policy,
		clock:      clock,
		logger:     log.WithModule("poller"),
		workers:    workers,
		storeRetry: storeRetry,
		pairs:      make(map[pairKey]*pair),
		due:        newDueQueue(),
		queue:      make(chan pairKey, workers),
	}
}

// OnOutcome registers a callback run by the worker after every poll
func (p *Poller) OnOutcome(fn func(ctx context.Context, company contracts.Company, out collector.Outcome)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onOutcome = fn
}

// Sync makes the pair set match companies × enabled sources. New pairs become
// due at a random offset within the source's jitter so they do not all fire at once.
func (p *Poller) Sync(companies []contracts.Company) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	want := make(map[pairKey]contracts.Company)
	for _, c := range companies {
		for _, src := range p.collector.Sources() {
			want[pairKey{company: c.ID, source: src}] = c
		}
	}

	added, removed := 0, 0
	for key, company := range want {
		if existing, ok := p.pairs[key]; ok {
			existing.company = company
			continue
		}
		sp, _ := p.policy.Source(key.source)
		pr := &pair{company: company, nextDue: now.Add(jitter(sp.Jitter.Std()))}
		p.pairs[key] = pr
		p.due.schedule(key, pr.nextDue)
		added++
	}
	for key, pr := range p.pairs {
		if _, ok := want[key]; !ok && !pr.inFlight {
			delete(p.pairs, key)
			p.due.remove(key)
			removed++
		}
	}

	if added+removed > 0 {
		p.logger.WithFields(map[string]any{
			"added":   added,
			"removed": removed,
			"pairs":   len(p.pairs),
		}).Info("Poll pairs synced")
	}
}

// Start launches the workers. In-flight polls run on a context that outlives ctx's
// cancellation, so Stop lets them finish or hit their own timeout.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(workCtx, i)
	}
	p.logger.WithField("workers", p.workers).Info("Poller started")
}

// Tick dispatches every due pair that has a free worker. Pairs whose source
// circuit is open are moved to the breaker's retry time; pairs that find every
// worker busy stay due for the next tick. After a store outage it returns the
// store error until storeRetry has passed, then resumes dispatching; a store
// still down halts it again on the next completed poll. It returns the number dispatched.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return 0, ErrPollerStopped
	}

	now := p.clock.Now()
	if p.halted != nil {
		if now.Before(p.haltedAt.Add(p.storeRetry)) {
			return 0, p.halted
		}
		p.logger.WithError(p.halted).Info("Resuming polling after store outage")
		p.halted = nil
	}

	dispatched := 0
	var requeue []pairKey
	for ctx.Err() == nil {
		key, ok := p.due.popDue(now)
		if !ok {
			break
		}
		pr := p.pairs[key]
		sp, _ := p.policy.Source(key.source)

		if guard, ok := p.guards.Guard(key.source); ok {
			h := guard.Health()
			if !h.Available(now) {
				p.skippedOpen.Add(1)
				if h.Disabled {
					pr.nextDue = now.Add(sp.PollInterval.Std())
				} else {
					pr.nextDue = h.NextRetryAt
				}
				requeue = append(requeue, key)
				continue
			}
		}

		select {
		case p.queue <- key:
			pr.inFlight = true
			pr.nextDue = now.Add(sp.PollInterval.Std() + jitter(sp.Jitter.Std()))
			dispatched++
			p.dispatched.Add(1)
		default:
			p.skippedBusy.Add(1)
			requeue = append(requeue, key)
		}
	}

	// Pushed back after the loop so a pair is looked at once per tick
	for _, key := range requeue {
		p.due.schedule(key, p.pairs[key].nextDue)
	}
	return dispatched, nil
}

func (p *Poller) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for key := range p.queue {
		p.mu.Lock()
		pr, ok := p.pairs[key]
		var company contracts.Company
		if ok {
			company = pr.company
		}
		hook := p.onOutcome
		p.mu.Unlock()
		if !ok {
			continue
		}

		out, err := p.collector.CollectSource(ctx, company, key.source)
		p.completed.Add(1)
		if out.Err != nil || err != nil {
			p.failures.Add(1)
		}

		p.mu.Lock()
		pr.inFlight = false
		pr.lastRun = p.clock.Now()
		if _, tracked := p.pairs[key]; tracked {
			p.due.schedule(key, pr.nextDue)
		}
		pr.lastErr = ""
		if out.Err != nil {
			pr.lastErr = out.Err.Error()
		}
		if err != nil {
			pr.lastErr = err.Error()
			if p.halted == nil {
				p.logger.WithError(err).WithFields(map[string]any{
					"worker":      id,
					"retry_after": p.storeRetry.String(),
				}).Error("Signal store unavailable; polling halted")
			}
			p.halted = err
			p.haltedAt = p.clock.Now()
		}
		p.mu.Unlock()

		if hook != nil && err == nil {
			hook(ctx, company, out)
		}
	}
}

// Stop stops dispatching and waits for in-flight polls. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	close(p.queue)
	p.mu.Unlock()

	if started {
		p.wg.Wait()
	}
	p.logger.Info("Poller stopped")
}

// Halted returns the store error that halted polling, if polling has not resumed since
func (p *Poller) Halted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

// Stats returns counters and current pair totals
func (p *Poller) Stats() PollerStats {
	p.mu.Lock()
	inFlight := 0
	for _, pr := range p.pairs {
		if pr.inFlight {
			inFlight++
		}
	}
	pairs := len(p.pairs)
	p.mu.Unlock()

	return PollerStats{
		Pairs:       pairs,
		InFlight:    inFlight,
		Dispatched:  p.dispatched.Load(),
		Completed:   p.completed.Load(),
		Failures:    p.failures.Load(),
		SkippedOpen: p.skippedOpen.Load(),
		SkippedBusy: p.skippedBusy.Load(),
	}
}

// Pairs returns a snapshot of every pair ordered by next-due time
func (p *Poller) Pairs() []PairStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PairStatus, 0, len(p.pairs))
	for key, pr := range p.pairs {
		out = append(out, PairStatus{
			CompanyID: key.company,
			Source:    key.source,
			NextDue:   pr.nextDue,
			InFlight:  pr.inFlight,
			LastRun:   pr.lastRun,
			LastError: pr.lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextDue.Equal(out[j].NextDue) {
			return out[i].NextDue.Before(out[j].NextDue)
		}
		if out[i].CompanyID != out[j].CompanyID {
			return out[i].CompanyID < out[j].CompanyID
		}
		return out[i].Source < out[j].Source
	})
	return out
}

func jitter(spread time.Duration) time.Duration {
	if spread <= 0 {
		return 0
	}
	return rand.N(spread)
}
