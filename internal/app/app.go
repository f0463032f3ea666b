package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/cinema-es/internal/config"
	"github.com/kirinyoku/cinema-es/internal/dispatcher"
	"github.com/kirinyoku/cinema-es/internal/notify"
	"github.com/kirinyoku/cinema-es/internal/postgres"
	"github.com/kirinyoku/cinema-es/internal/projection"
	"github.com/kirinyoku/cinema-es/internal/queue"
	"github.com/kirinyoku/cinema-es/internal/redis"
	"github.com/kirinyoku/cinema-es/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/cinema-es/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/cinema-es/internal/repository/redis"
	"github.com/kirinyoku/cinema-es/internal/service"
	"github.com/kirinyoku/cinema-es/internal/service/commands"
	"github.com/kirinyoku/cinema-es/internal/service/query"
	"github.com/kirinyoku/cinema-es/internal/storage"
	httpgin "github.com/kirinyoku/cinema-es/internal/transport/http/gin"
)

type eventStore interface {
	commands.EventStore
	dispatcher.EventLog
}

type readStore interface {
	projection.Store
	projection.Reader
}

type backends struct {
	events      eventStore
	reads       readStore
	deadLetters dispatcher.DeadLetterStore
	checkpoints dispatcher.CheckpointStore
}

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	dispatcher *dispatcher.Dispatcher
	closers    []func() error
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger}

	b, err := a.storage(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		cache       *redisrepo.Cache
		idem        httpgin.Idempotency
		limiter     httpgin.Limiter
		invalidator projection.Invalidator
		bus         notify.Publisher
	)

	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)

		cache = redisrepo.New(rdb)
		invalidator = cache
		idem = redisrepo.NewIdempotencyStore(rdb, 24*time.Hour, time.Minute)
		limiter = redisrepo.NewLimiter(rdb, "write", cfg.RateLimit.Limit, cfg.RateLimit.Window)
		if cfg.Bus.Driver == config.BusRedis {
			bus = redisrepo.NewEventsPubSub(rdb)
		}
	}

	if cfg.Bus.Driver == config.BusAMQP {
		pub, err := queue.New(queue.Config{URL: cfg.Bus.AMQPURL, Exchange: cfg.Bus.AMQPExchange}, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize rabbitmq: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		bus = pub
	}

	subs := make([]dispatcher.Subscriber, 0, len(projection.All())+1)
	for _, p := range projection.All() {
		subs = append(subs, projection.NewProjector(p, b.reads, invalidator, logger))
	}
	if bus != nil {
		subs = append(subs, notify.New(bus, logger))
	}

	a.dispatcher = dispatcher.New(dispatcher.Config{
		Shards:       cfg.Dispatcher.Shards,
		PollInterval: cfg.Dispatcher.PollInterval,
		MaxAttempts:  cfg.Dispatcher.MaxAttempts,
		RetryMax:     cfg.Dispatcher.RetryMax,
	}, b.events, b.deadLetters, b.checkpoints, logger, subs...)

	deps := service.Deps{
		Events:      b.events,
		Reads:       b.reads,
		Reader:      b.reads,
		DeadLetters: b.deadLetters,
		Dispatcher:  a.dispatcher,
		Cache:       cache,
	}

	if cfg.Minio.Enabled {
		m, err := storage.New(storage.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
			PublicURL: cfg.Minio.PublicURL,
			MaxSize:   cfg.Minio.MaxSize,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize minio: %w", err)
		}
		if err := m.EnsureBucket(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to prepare minio bucket: %w", err)
		}
		deps.Storage = m
	}

	services := service.NewServices(deps, service.Config{
		Query: query.Config{EntityTTL: cfg.CacheTTL},
	}, logger)

	router := httpgin.NewRouter(services, httpgin.RouterConfig{
		Idempotency: idem,
		Limiter:     limiter,
		JWTSecret:   cfg.Auth.JWTSecret,
		AdminRole:   cfg.Auth.AdminRole,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) storage(ctx context.Context) (backends, error) {
	switch a.cfg.Storage {
	case config.StorageMemory:
		a.logger.Warn("using in-memory storage; all data is lost on exit")
		return backends{
			events:      memory.NewEventStore(),
			reads:       memory.NewReadStore(),
			deadLetters: memory.NewDeadLetterStore(),
			checkpoints: memory.NewCheckpointStore(),
		}, nil
	default:
		pool, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.Postgres.DSN()})
		if err != nil {
			return backends{}, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		store := postgresrepo.NewStore(pool, postgresrepo.Config{})
		if err := store.Migrate(ctx); err != nil {
			return backends{}, fmt.Errorf("failed to migrate postgres: %w", err)
		}

		return backends{
			events:      store.Events(),
			reads:       store.ReadModel(),
			deadLetters: store.DeadLetters(),
			checkpoints: store.Checkpoints(),
		}, nil
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("event dispatcher starting", "subscribers", a.dispatcher.Subscribers())
		return a.dispatcher.Run(gCtx)
	})

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// close releases connections in reverse order of creation.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
