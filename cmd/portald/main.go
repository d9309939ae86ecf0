package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"quorum/internal/auth"
	"quorum/internal/authz"
	"quorum/internal/invalidation"
	"quorum/internal/invalidation/crosstab"
	"quorum/internal/invalidation/feed"
	"quorum/internal/platform/config"
	"quorum/internal/platform/httpserver"
	"quorum/internal/platform/logger"
	platformredis "quorum/internal/platform/redis"
	"quorum/internal/portal"
	"quorum/internal/session"
	"quorum/internal/staff"
	httptransport "quorum/internal/transport/http"
)

const (
	sessionTTL      = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

// main wires high-level dependencies and keeps the server lifecycle small.
// All invalidation and guard logic lives in internal packages; the only
// decisions made here are which backing stores are available.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis backs the cross-context channel and session store. Without it
	// the process still runs, scoped to local signals only.
	var redisClient *platformredis.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = platformredis.New(cfg.Redis)
		if err != nil {
			log.Error("redis unavailable, falling back to in-process signals", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var crosstabStore crosstab.Store
	var sessions session.Store
	if redisClient != nil {
		crosstabStore = crosstab.NewRedisStore(redisClient.Client)
		sessions = session.NewRedisStore(redisClient.Client)
	} else {
		crosstabStore = crosstab.NewMemoryStore()
		sessions = session.NewMemoryStore()
	}

	var directory staff.Directory
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres pool failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		directory = staff.NewPostgresDirectory(pool)
	} else {
		log.Warn("POSTGRES_URL not set, using in-memory staff directory")
		directory = staff.NewMemoryDirectory()
	}

	bus := invalidation.NewBus(log)
	channel := crosstab.NewChannel(crosstabStore, log, crosstab.Options{
		ClearAfter:      cfg.Invalidation.BroadcastClear,
		StalenessWindow: cfg.Invalidation.StalenessWindow,
	})
	defer channel.Close()

	var feedSource feed.Source
	if len(cfg.Kafka.Brokers) > 0 {
		feedSource = feed.NewKafkaSource(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log)
	}

	registry := portal.NewRegistry()
	tokens := auth.NewTokenService(cfg.JWTSigningKey, "quorum")
	resolver := authz.NewResolver(sessions, directory, sessionTTL, log)
	trigger := invalidation.NewTrigger(bus, channel, log)

	handler := httptransport.NewHandler(httptransport.Deps{
		Logger:          log,
		Registry:        registry,
		Resolver:        resolver,
		Sessions:        sessions,
		Directory:       directory,
		Tokens:          tokens,
		Trigger:         trigger,
		Bus:             bus,
		Channel:         channel,
		Feed:            feedSource,
		Invalidation:    cfg.Invalidation,
		SuperAdminEmail: cfg.SuperAdminEmail,
		SessionTTL:      sessionTTL,
	})

	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting portald", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("portald exited", "error", err)
		os.Exit(1)
	}
	log.Info("portald stopped")
}
