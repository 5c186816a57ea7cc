// Command broker runs the Service Notification Processor: it consumes
// auth-domain notifications from NATS JetStream, persists login
// records to Postgres, and fans out derived events to per-relying-party
// topics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/rp-notify/broker/internal/cache"
	"github.com/rp-notify/broker/internal/config"
	"github.com/rp-notify/broker/internal/httpserver"
	"github.com/rp-notify/broker/internal/logging"
	"github.com/rp-notify/broker/internal/messaging/nats"
	"github.com/rp-notify/broker/internal/processor"
	"github.com/rp-notify/broker/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("broker"))
	logging.SetDefault(logger)

	slog.Info("starting notification broker",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open datastore", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	var redisClient *redis.Client
	if cfg.Cache.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			slog.Error("invalid redis url", slog.String("error", err.Error()))
			os.Exit(1)
		}
		redisClient = redis.NewClient(opt)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pctx).Err(); err != nil {
			cancel()
			slog.Error("redis connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cancel()
		defer redisClient.Close()
	}
	var refreshLock cache.RefreshLock
	if redisClient != nil {
		refreshLock = cache.NewRedisLock(redisClient)
	}

	capabilityCache := cache.NewCapabilityCache(
		cfg.CapabilityCache.CatalogURL,
		cfg.CapabilityCache.RefreshInterval,
		nil,
		logger,
		refreshLock,
	)
	webhookCache := cache.NewWebhookCache(
		cfg.WebhookCache.CatalogURL,
		cfg.WebhookCache.RefreshInterval,
		nil,
		logger,
		refreshLock,
	)

	conn, err := nats.Connect(nats.Config{
		URL:           cfg.NATS.URL,
		Name:          "rp-notify-broker",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		slog.Error("failed to connect to nats", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	publisher, err := nats.NewJetStreamPublisher(conn)
	if err != nil {
		slog.Error("failed to create jetstream publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer publisher.Close()

	consumer, err := nats.NewPullConsumer(ctx, conn,
		nats.StreamConfig{
			Name:     cfg.Processor.QueueStream,
			Subjects: []string{cfg.Processor.QueueStream + ".>"},
			MaxAge:   24 * time.Hour,
		},
		nats.ConsumerConfig{
			Name:          cfg.Processor.QueueConsumer,
			FilterSubject: cfg.Processor.QueueStream + ".>",
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
		},
	)
	if err != nil {
		slog.Error("failed to create jetstream consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer consumer.Close()

	proc := processor.New(consumer, publisher, st, capabilityCache, webhookCache, processor.Config{
		BatchSize:      cfg.Processor.BatchSize,
		TopicPrefix:    cfg.Processor.TopicPrefix,
		PublishTimeout: cfg.Processor.PublishTimeout,
	}, logger)

	if err := proc.Start(ctx); err != nil {
		slog.Error("failed to start processor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: httpserver.New(proc.State),
	}

	go func() {
		slog.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server forced to shutdown", slog.String("error", err.Error()))
	}

	proc.Stop()

	slog.Info("shutdown complete")
}

// openStore connects to Postgres and runs pending migrations. An empty
// host falls back to the in-memory store so the broker can run in
// development without a database; the host defaults to localhost, so it
// must be set to "" explicitly for that.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.Postgres.Host == "" {
		slog.Warn("no postgres host configured, using in-memory store (development only)")
		return store.NewMemory(), nil
	}

	connString := cfg.Database.Postgres.ConnString()

	slog.Info("connecting to postgres",
		slog.String("host", cfg.Database.Postgres.Host),
		slog.Int("port", cfg.Database.Postgres.Port),
		slog.String("database", cfg.Database.Postgres.Database),
	)

	pg, err := store.NewPostgres(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	slog.Info("running database migrations")
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		pg.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return pg, nil
}
