package daemon

import (
	"context"

	"github.com/matheus3301/meeple/internal/api"
	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/cache"
	"github.com/matheus3301/meeple/internal/chat"
	"github.com/matheus3301/meeple/internal/community"
	"github.com/matheus3301/meeple/internal/config"
	"github.com/matheus3301/meeple/internal/feed"
	"github.com/matheus3301/meeple/internal/lock"
	"github.com/matheus3301/meeple/internal/logging"
	"github.com/matheus3301/meeple/internal/notify"
	"github.com/matheus3301/meeple/internal/profile"
	"github.com/matheus3301/meeple/internal/session"
	"github.com/matheus3301/meeple/internal/store"
	intsync "github.com/matheus3301/meeple/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string         // optional override for testing; empty = use default
	Config     *config.Config // optional override; nil = load config.toml and env
	Logger     *zap.Logger    // optional override; nil = log to the profile's log file
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideBackend,
			provideSession,
			provideRealtime,
			provideChats,
			provideCache,
			provideFeed,
			provideCommunity,
			provideSyncEngine,
			provideControl,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(profile.DotenvPath()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.Profile), p.Profile, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBackend(cfg *config.Config, logger *zap.Logger) *backend.Client {
	c := backend.New(cfg.API.BaseURL,
		backend.WithTimeout(cfg.API.Timeout.Duration),
		backend.WithRateLimit(cfg.API.MaxRPS),
	)
	logger.Info("backend configured",
		zap.String("base_url", c.BaseURL()),
		zap.Duration("timeout", cfg.API.Timeout.Duration),
		zap.Float64("max_rps", cfg.API.MaxRPS),
	)
	return c
}

func provideSession(c *backend.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *session.Store {
	return session.NewStore(c, db, b, logger)
}

func provideRealtime(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *notify.Manager {
	return notify.NewManager(nil, b, notify.LogAlerter{Logger: logger.Named("alert")}, notify.Config{
		URL:      cfg.Realtime.URL,
		Attempts: cfg.Realtime.ReconnectAttempts,
		Delay:    cfg.Realtime.ReconnectDelay.Duration,
		DelayMax: cfg.Realtime.ReconnectDelayMax.Duration,
	}, logger)
}

func provideChats(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *chat.Registry {
	return chat.NewRegistry(nil, chat.Config{
		URL:       cfg.Realtime.URL,
		Namespace: cfg.Realtime.ChatNamespace,
		Attempts:  cfg.Realtime.ReconnectAttempts,
		Delay:     cfg.Realtime.ReconnectDelay.Duration,
		DelayMax:  cfg.Realtime.ReconnectDelayMax.Duration,
	}, b, logger)
}

func provideCache(cfg *config.Config, b *bus.Bus) *cache.Cache {
	return cache.New(b, cache.WithTTL(cfg.Cache.TTL.Duration))
}

// The feed and community views are keyed by the session's user, so a view
// fetched for one user is never served to the next.
func provideFeed(c *backend.Client, qc *cache.Cache, s *session.Store, logger *zap.Logger) *feed.Service {
	return feed.NewService(c, qc, s, logger)
}

func provideCommunity(c *backend.Client, qc *cache.Cache, s *session.Store, logger *zap.Logger) *community.Service {
	return community.NewService(c, qc, s, logger)
}

func provideSyncEngine(db *store.DB, qc *cache.Cache, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, qc, b, logger)
}

type controlDeps struct {
	fx.In

	Params    Params
	Backend   *backend.Client
	Session   *session.Store
	DB        *store.DB
	Engine    *intsync.Engine
	Chats     *chat.Registry
	Feed      *feed.Service
	Community *community.Service
	Realtime  *notify.Manager
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func provideControl(d controlDeps) *api.Control {
	return api.NewControl(api.Deps{
		Profile:   d.Params.Profile,
		API:       d.Backend,
		Session:   d.Session,
		DB:        d.DB,
		Engine:    d.Engine,
		Chats:     d.Chats,
		Feed:      d.Feed,
		Community: d.Community,
		Realtime:  d.Realtime,
		Bus:       d.Bus,
		Logger:    d.Logger,
	})
}

type lifecycleDeps struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Session   *session.Store
	Engine    *intsync.Engine
	Realtime  *notify.Manager
	Chats     *chat.Registry
	Logger    *zap.Logger
}

func registerLifecycle(d lifecycleDeps) {
	logger := d.Logger
	ctx, cancel := context.WithCancel(context.Background())
	loaded := make(chan struct{})

	d.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribers first so the identity restored by Load reaches them.
			d.Engine.Start(ctx)
			d.Realtime.Start(ctx)
			d.Chats.Start()

			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			go func() {
				defer close(loaded)
				loadCtx, stop := context.WithTimeout(ctx, d.Config.API.Timeout.Duration)
				defer stop()
				if err := d.Session.Load(loadCtx); err != nil {
					logger.Warn("session restore failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			<-loaded
			d.Server.Stop(stopCtx)
			d.Chats.Stop()
			d.Realtime.Stop()
			d.Engine.Stop()
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
