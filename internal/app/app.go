// Package app is the composition root: it constructs the store, registry,
// condition engine, action dispatcher, router, scheduler, connector stack,
// and webhook server from configuration, wires them together, and owns their
// start/stop lifecycle. Nothing in this repository self-instantiates; the
// embedding application builds one App and injects its own collaborators.
package app

import (
	"context"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/jeffkos/form-ease-sub004/internal/actions"
	"github.com/jeffkos/form-ease-sub004/internal/common/cache"
	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/common/ratelimit"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
	"github.com/jeffkos/form-ease-sub004/internal/config"
	"github.com/jeffkos/form-ease-sub004/internal/connector"
	"github.com/jeffkos/form-ease-sub004/internal/registry"
	"github.com/jeffkos/form-ease-sub004/internal/router"
	"github.com/jeffkos/form-ease-sub004/internal/rules"
	"github.com/jeffkos/form-ease-sub004/internal/scheduler"
	"github.com/jeffkos/form-ease-sub004/internal/storage"
	"github.com/jeffkos/form-ease-sub004/internal/webhook"
)

// Options carries the collaborators the embedding application supplies.
// All fields are optional; absent collaborators make the corresponding
// action types fail per-action rather than at startup.
type Options struct {
	Workflow      actions.WorkflowEngine
	Notifications actions.NotificationSender
	HTTPClient    *http.Client
	Logger        logging.Logger
}

// App owns the constructed automation core
type App struct {
	Config      *config.Config
	Store       storage.Store
	Registry    *registry.Registry
	Rules       *rules.Engine
	Dispatcher  *actions.Dispatcher
	Router      *router.Router
	Scheduler   *scheduler.Scheduler
	Webhook     *webhook.Server
	Catalog     *connector.Catalog
	Connections *connector.Connections
	Invoker     *connector.Invoker

	redisClient *redis.Client
	logger      logging.Logger
}

// New constructs and wires the full automation core from cfg. The returned
// App is not running; call Start.
func New(cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.NewZapLogger(logging.Config{
			Level: logging.ParseLevel(cfg.LogLevel),
			Name:  "formease-automation",
		})
		if err != nil {
			return nil, err
		}
		logging.SetGlobalLogger(logger)
	}

	a := &App{Config: cfg, logger: logger}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store

	a.Registry = registry.NewRegistry(store, logger)
	a.Rules = rules.NewEngine(logger)

	a.Catalog = connector.NewCatalog()
	a.Connections = connector.NewConnections(a.Catalog)

	invokerOpts := connector.InvokerOptions{
		CacheTTL:      cfg.ConnectorCacheTTL,
		RateLimit:     cfg.ConnectorRateLimit,
		RateWindow:    cfg.ConnectorRateWindow,
		MaxConcurrent: cfg.ConnectorMaxConcurrent,
		Retry: utils.RetryConfig{
			MaxAttempts:  cfg.ConnectorRetryAttempts,
			InitialDelay: cfg.ConnectorRetryDelay,
			Strategy:     utils.BackoffStrategy(cfg.ConnectorRetryStrategy),
			Factor:       2.0,
			JitterFactor: 0.1,
		},
	}
	if cfg.RedisEnabled {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		invokerOpts.ResponseCache = cache.NewRedisCache(a.redisClient, "formease:connector")
	}
	a.Invoker = connector.NewInvoker(a.Connections, opts.HTTPClient, invokerOpts, logger)

	a.Dispatcher = actions.NewDispatcher(logger)
	a.Dispatcher.RegisterBuiltins(actions.Collaborators{
		Workflow:      opts.Workflow,
		Notifications: opts.Notifications,
		HTTPClient:    opts.HTTPClient,
		Integrations:  a.Invoker,
	})

	a.Router = router.NewRouter(a.Registry, a.Rules, a.Dispatcher, router.Options{
		HistoryCap:       cfg.HistoryCap,
		HistoryRetention: cfg.HistoryRetention,
		PruneInterval:    cfg.HistoryPruneInterval,
	}, logger)
	a.Registry.AddHook(a.Router)

	a.Scheduler = scheduler.NewScheduler(a.Router, cfg.SchedulerPollInterval, logger)
	a.Registry.AddHook(a.Scheduler)

	if cfg.WebhookEnabled {
		limits := ratelimit.DefaultConfig()
		limits.RequestsPerSecond = cfg.WebhookRateLimit
		limits.BurstSize = cfg.WebhookRateBurst
		a.Webhook = webhook.NewServer(cfg.WebhookAddr, a.Router, limits, logger)
		a.Registry.AddHook(a.Webhook)
	}

	// re-registers persisted triggers, redoing scheduling and webhook setup
	// through the hooks just attached
	if err := a.Registry.LoadPersisted(); err != nil {
		logger.Warn("Starting with an empty trigger registry")
	}

	return a, nil
}

func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreType {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.SQLitePath)
	case "memory":
		return nil, nil
	default:
		return storage.NewFileStore(cfg.StorePath)
	}
}

// Start launches the scheduler poll loop, the history prune loop, and the
// webhook server
func (a *App) Start(ctx context.Context) {
	a.Scheduler.Start(ctx)
	a.Router.StartPruning()
	if a.Webhook != nil {
		a.Webhook.Start()
	}
	a.logger.Info("Automation core started",
		logging.Int("trigger_count", a.Registry.Count()),
		logging.Bool("webhook_enabled", a.Webhook != nil),
	)
}

// Stop shuts everything down in reverse order of Start
func (a *App) Stop(ctx context.Context) {
	if a.Webhook != nil {
		if err := a.Webhook.Stop(ctx); err != nil {
			a.logger.Error("Webhook server shutdown failed", err)
		}
	}
	a.Router.StopPruning()
	a.Scheduler.Stop()
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.logger.Error("Store close failed", err)
		}
	}
	a.logger.Info("Automation core stopped")
}
