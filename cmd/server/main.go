package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/api"
	"github.com/lalith-99/huddle/internal/assembler"
	"github.com/lalith-99/huddle/internal/config"
	"github.com/lalith-99/huddle/internal/db"
	"github.com/lalith-99/huddle/internal/gateway"
	"github.com/lalith-99/huddle/internal/observ"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository/postgres"
	"github.com/lalith-99/huddle/internal/send"
	"github.com/lalith-99/huddle/internal/storage"
	"github.com/lalith-99/huddle/migrations"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	metrics := observ.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 2. Postgres, schema
	// ---------------------------------------------------------------
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(migrations.FS); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// ---------------------------------------------------------------
	// 3. Change feed transport and object storage
	// ---------------------------------------------------------------
	health := map[string]api.HealthCheck{"database": database.Health}

	broker, err := newBroker(ctx, cfg, logger, health)
	if err != nil {
		return err
	}
	defer broker.Close()

	store, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	health["storage"] = store.Health

	// ---------------------------------------------------------------
	// 4. Repositories and the pipeline around them
	// ---------------------------------------------------------------
	pool := database.Pool()
	tenantRepo := postgres.NewTenantStore(pool)
	userRepo := postgres.NewUserStore(pool)
	channelRepo := postgres.NewChannelStore(pool)
	membershipRepo := postgres.NewMembershipStore(pool)
	messageRepo := postgres.NewMessageStore(pool)
	attachmentRepo := postgres.NewAttachmentStore(pool)
	reactionRepo := postgres.NewReactionStore(pool)
	postRepo := postgres.NewPostStore(pool)
	commentRepo := postgres.NewCommentStore(pool)

	emitter := realtime.NewEmitter(broker, logger)
	feed := realtime.NewClient(broker, logger, metrics, cfg.ResubscribeMaxInterval)
	hydrator := assembler.New(userRepo, attachmentRepo, reactionRepo, commentRepo, logger, metrics)
	pipeline := send.NewPipeline(attachmentRepo, store, logger, metrics, cfg.SendTimeout)

	hub := gateway.NewHub(gateway.Options{
		Feed:         feed,
		Assembler:    hydrator,
		Messages:     messageRepo,
		Posts:        postRepo,
		Members:      membershipRepo,
		Users:        userRepo,
		Pipeline:     pipeline,
		Emitter:      emitter,
		Logger:       logger,
		Metrics:      metrics,
		HistoryLimit: cfg.HistoryLimit,
	})
	// Sends from HTTP and from websocket sessions both show up in the
	// sender's open sessions before the feed echo arrives.
	pipeline.SetLocalSink(hub)

	// ---------------------------------------------------------------
	// 5. HTTP server
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	srv.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	if local, ok := store.(*storage.LocalStorage); ok {
		srv.Static("/files", local.BasePath())
	}

	api.RegisterRoutes(srv, api.Handlers{
		Auth:        api.NewAuthHandler(userRepo, tenantRepo, cfg.JWTSecret, logger),
		Users:       api.NewUserHandler(userRepo, logger),
		Channels:    api.NewChannelHandler(channelRepo, membershipRepo, logger),
		Memberships: api.NewMembershipHandler(membershipRepo, channelRepo, logger),
		Messages:    api.NewMessageHandler(messageRepo, membershipRepo, pipeline, hydrator, emitter, cfg.MaxUploadBytes, logger),
		Posts:       api.NewPostHandler(postRepo, commentRepo, membershipRepo, pipeline, hydrator, emitter, cfg.MaxUploadBytes, logger),
		Reactions:   api.NewReactionHandler(reactionRepo, messageRepo, postRepo, membershipRepo, emitter, logger),
		Direct:      api.NewDirectHandler(messageRepo, userRepo, pipeline, hydrator, emitter, cfg.MaxUploadBytes, logger),
		WS:          api.NewWSHandler(hub, cfg.WSAllowedOrigins, logger),
		Health:      health,
	}, cfg.JWTSecret)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting huddle",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("feed_backend", cfg.FeedBackend),
		zap.String("storage_backend", cfg.StorageBackend),
	)

	// ---------------------------------------------------------------
	// 6. Serve until a signal, then drain
	// ---------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Websocket connections are hijacked and not tracked by Shutdown.
		if err := hub.Shutdown(shutdownCtx); err != nil {
			logger.Warn("websocket sends still in flight", zap.Error(err))
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newBroker(ctx context.Context, cfg *config.Config, logger *zap.Logger, health map[string]api.HealthCheck) (realtime.Broker, error) {
	if cfg.FeedBackend == "memory" {
		logger.Warn("memory change feed: events stay inside this process")
		return realtime.NewMemoryBroker(256), nil
	}

	client, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	health["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return realtime.NewRedisBroker(client, logger), nil
}
