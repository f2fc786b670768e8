// Package app wires the messenger server runtime: config, logging, storage
// backends, HTTP routes and lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/identity"
	authapi "github.com/karlocehulic19/messaging-app-sub000/cmd/internal/auth/api"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/auth/session"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/events"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/messages"
	msgapi "github.com/karlocehulic19/messaging-app-sub000/cmd/internal/messages/api"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/ratelimit"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/security/password"
)

// closer is a resource released on shutdown, in reverse acquisition order.
type closer struct {
	name  string
	close func(ctx context.Context) error
}

// App owns the HTTP server and every backend it was wired with.
type App struct {
	cfg Config
	log Logger

	handler http.Handler
	closers []closer
}

// backends groups the storage choices made from config.
type backends struct {
	pool     *pgxpool.Pool
	users    identity.Store
	messages messages.Store
	redis    *redis.Client
	limiter  ratelimit.Limiter
	sink     interface {
		messages.EventSink
		Close() error
	}
}

// New constructs a fully wired App from config.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	a := &App{cfg: cfg, log: log}

	ok := false
	defer func() {
		if !ok {
			a.closeAll(context.Background())
		}
	}()

	shutdownTracing, err := initTracing(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.onClose("tracing", shutdownTracing)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	be, err := a.openBackends(ctx)
	if err != nil {
		return nil, err
	}

	msgCfg, err := messages.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	svc := messages.NewService(be.messages, msgCfg,
		messages.WithDirectory(be.users),
		messages.WithEventSink(be.sink),
		messages.WithMetrics(messages.NewMetrics(reg)),
		messages.WithLogger(log),
	)

	sessCfg, err := loadSessionConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewJWTManager(sessCfg)
	if err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	authCfg := authapi.LoadConfigFromEnv()
	authHandler, err := authapi.NewHandler(log, authCfg, be.users, tokens, pwCfg,
		authapi.WithLoginLimiter(a.newLimiter(be, authCfg.LoginMax, authCfg.LoginWindow)),
	)
	if err != nil {
		return nil, err
	}

	msgHandler := msgapi.NewHandler(log, msgapi.LoadConfigFromEnv(), svc, tokens,
		msgapi.WithLimiter(be.limiter),
	)

	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:      log,
		cfg:      cfg,
		dbPool:   be.pool,
		gatherer: reg,
		auth:     authHandler,
		messages: msgHandler,
	})
	a.handler = buildHandler(mux, log, cfg, newHTTPMetrics(reg))

	ok = true
	return a, nil
}

// openBackends picks Postgres or in-memory stores, Redis or in-memory limits,
// and Kafka or a no-op event sink.
func (a *App) openBackends(ctx context.Context) (backends, error) {
	var be backends
	cfg, log := a.cfg, a.log

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		be.users = identity.NewInMemoryStore()
		be.messages = messages.NewInMemoryStore()
	} else {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return be, fmt.Errorf("db: %w", err)
		}
		// The app owns the pool; store Close methods do not close it.
		a.onClose("db", func(context.Context) error { pool.Close(); return nil })
		be.pool = pool

		users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			return be, err
		}
		msgOpts := []messages.PostgresOption{messages.WithSchema(cfg.DBSchema)}
		if cfg.DBUserFKs {
			msgOpts = append(msgOpts, messages.WithUserForeignKeys())
		}
		msgs, err := messages.NewPostgresStore(pool, msgOpts...)
		if err != nil {
			return be, err
		}

		if cfg.DBAutoMigrate {
			// users first: the messages foreign keys reference it.
			if err := users.Migrate(ctx); err != nil {
				return be, fmt.Errorf("migrate users: %w", err)
			}
			if err := msgs.Migrate(ctx); err != nil {
				return be, fmt.Errorf("migrate messages: %w", err)
			}
			log.Info("db.migrate.ok", "schema", cfg.DBSchema)
		}
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
		be.users, be.messages = users, msgs
	}
	a.onClose("messages", func(context.Context) error { return be.messages.Close() })

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.onClose("redis", func(context.Context) error { return rdb.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return be, fmt.Errorf("redis: %w", err)
		}
		be.redis = rdb
		log.Info("ratelimit.redis", "addr", cfg.RedisAddr)
	}
	be.limiter = a.newLimiter(be, cfg.RateLimitCount, cfg.RateLimitEvery)

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := events.NewKafkaSink(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return be, err
		}
		be.sink = sink
		log.Info("events.kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		be.sink = events.Noop{}
	}
	a.onClose("events", func(context.Context) error { return be.sink.Close() })

	return be, nil
}

func (a *App) newLimiter(be backends, n int, window time.Duration) ratelimit.Limiter {
	lc := ratelimit.Config{Events: n, Window: window}
	if be.redis != nil {
		return ratelimit.NewRedisLimiter(be.redis, lc)
	}
	return ratelimit.NewMemoryLimiter(lc)
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

func (a *App) closeAll(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.log.Error("shutdown.close.fail", "resource", c.name, "err", err)
		}
	}
	a.closers = nil
}

// Handler exposes the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// down the server and releases every backend.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
		}
		a.closeAll(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
