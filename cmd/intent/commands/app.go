package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wonny/intent/internal/collector"
	"github.com/wonny/intent/internal/companies"
	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/data/memory"
	"github.com/wonny/intent/internal/data/repos"
	"github.com/wonny/intent/internal/engine"
	"github.com/wonny/intent/internal/external/github"
	"github.com/wonny/intent/internal/external/greenhouse"
	"github.com/wonny/intent/internal/external/newsapi"
	"github.com/wonny/intent/internal/external/reddit"
	"github.com/wonny/intent/internal/external/techstack"
	"github.com/wonny/intent/internal/intentconfig"
	"github.com/wonny/intent/internal/limiter"
	"github.com/wonny/intent/internal/realtime/cache"
	"github.com/wonny/intent/internal/realtime/feed"
	"github.com/wonny/intent/internal/scheduler"
	"github.com/wonny/intent/internal/scheduler/jobs"
	"github.com/wonny/intent/internal/scoring"
	"github.com/wonny/intent/pkg/config"
	"github.com/wonny/intent/pkg/database"
	"github.com/wonny/intent/pkg/httputil"
	"github.com/wonny/intent/pkg/logger"
	"github.com/wonny/intent/pkg/redis"
)

// httpTimeout caps any single outbound request; per-source policy timeouts are tighter
const httpTimeout = 60 * time.Second

// app holds the wired process. Fields not needed by a command stay nil.
// ⭐ SSOT: 의존성 조립은 이 파일에서만
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	policy *intentconfig.Policy
	clock  clockwork.Clock

	db    *database.DB
	redis *redis.Client

	guards     *limiter.Registry
	collector  *collector.Collector
	engine     *engine.Engine
	scoreCache *cache.ScoreCache
	hub        *feed.Hub
}

type appOptions struct {
	// withHub creates the websocket hub and publishes score events to it
	withHub bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if policyFile != "" {
		cfg.PolicyPath = policyFile
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Load policy
	policy, err := intentconfig.LoadOrDefault(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	a := &app{cfg: cfg, log: log, policy: policy, clock: clockwork.NewRealClock()}

	// 4. Stores
	var signalStore contracts.SignalStore
	var companyStore contracts.CompanyStore
	if cfg.UsePostgres() {
		a.db, err = database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		signalStore = repos.NewSignalRepository(a.db.Pool)
		companyStore = repos.NewCompanyRepository(a.db.Pool)
		log.Info("Using PostgreSQL store")
	} else {
		signalStore = memory.NewSignalStore()
		companyStore = memory.NewCompanyStore()
		log.Warn("Using in-memory store; signals are lost on exit")
	}

	// 5. Redis (optional)
	a.redis, err = redis.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 6. Rate limiting and circuit breaking
	var buckets limiter.BucketFactory
	if cfg.RateLimitBackend == "redis" {
		buckets = limiter.RedisBuckets(redis.NewTokenBucket(a.redis, "intent:ratelimit"))
	}
	a.guards = limiter.NewRegistry(policy, a.clock, log, buckets)

	// 7. Collector and source adapters
	a.collector = collector.NewCollector(collector.Config{
		Guards: a.guards,
		Store:  signalStore,
		Policy: policy,
		Clock:  a.clock,
		Logger: log,
	})
	a.registerAdapters()

	// 8. Scoring
	se, err := scoring.NewEngine(policy)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build scoring engine: %w", err)
	}

	// 9. Score cache: shared through Redis when enabled
	var scoreCache engine.ScoreCache
	if a.redis.Enabled() {
		scoreCache = engine.NewRedisScoreCache(redis.NewCache(a.redis, "intent"), cfg.ScoreCacheTTL)
	} else {
		a.scoreCache = cache.NewScoreCache(cfg.ScoreCacheTTL, a.clock, log)
		scoreCache = a.scoreCache
	}

	engineCfg := engine.Config{
		Registry:  companies.NewRegistry(companyStore, log),
		Collector: a.collector,
		Scorer:    scoring.NewScorer(signalStore, se, a.clock),
		Store:     signalStore,
		Guards:    a.guards,
		Cache:     scoreCache,
		Logger:    log,
	}
	if opts.withHub {
		a.hub = feed.NewHub(log)
		engineCfg.Publisher = a.hub
	}
	a.engine = engine.New(engineCfg)

	return a, nil
}

func (a *app) registerAdapters() {
	src := a.cfg.Sources
	httpClient := httputil.New(a.log, httpTimeout)

	adapters := map[contracts.Source]contracts.Adapter{
		contracts.SourceRepoActivity: github.NewClient(httpClient, a.log, src.GitHub.BaseURL, src.GitHub.Token),
		contracts.SourceCommunity: reddit.NewClient(
			httputil.New(a.log, httpTimeout).WithUserAgent(src.Reddit.UserAgent), a.log, src.Reddit.BaseURL),
		contracts.SourceJobPosting: greenhouse.NewClient(httpClient, a.log, src.Greenhouse.BaseURL),
		contracts.SourceNews:       newsapi.NewClient(httpClient, a.log, src.NewsAPI.BaseURL, src.NewsAPI.APIKey),
		contracts.SourceTechStack: techstack.NewClient(
			httputil.New(a.log, httpTimeout).WithUserAgent(src.TechStack.UserAgent), a.log, src.TechStack.Scheme, a.clock),
	}
	for _, source := range a.policy.EnabledSources() {
		if adapter, ok := adapters[source]; ok {
			a.collector.Register(source, adapter)
		}
	}
}

// newScheduler builds the poller and registers every periodic job
func (a *app) newScheduler() (*scheduler.Scheduler, *scheduler.Poller, error) {
	poller := scheduler.NewPoller(a.collector, a.guards, a.policy, a.clock, a.log)
	poller.OnOutcome(a.engine.HandleOutcome)

	sched := scheduler.New(a.log, scheduler.WithClock(a.clock))
	sp := a.policy.Scheduler
	list := []scheduler.Job{
		jobs.NewPollJob(poller, sp.Tick.Std(), a.log),
		jobs.NewCompanySyncJob(a.engine.Companies(), poller, a.log),
		jobs.NewScoreRefreshJob(a.engine, sp.ScoreRefresh, a.log),
		jobs.NewHealthReportJob(a.engine, sp.HealthReport, a.log),
	}
	if a.scoreCache != nil {
		list = append(list, jobs.NewCacheCleanupJob(a.scoreCache, a.log))
	}
	for _, job := range list {
		if err := sched.AddJob(job); err != nil {
			return nil, nil, err
		}
	}
	return sched, poller, nil
}

// Close releases connections
func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
