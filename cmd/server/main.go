package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/match-lifecycle/internal/approval"
	"github.com/match-lifecycle/internal/auth"
	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/handler"
	"github.com/match-lifecycle/internal/kafka"
	"github.com/match-lifecycle/internal/matchmaking"
	"github.com/match-lifecycle/internal/memory"
	"github.com/match-lifecycle/internal/metrics"
	"github.com/match-lifecycle/internal/postgres"
	"github.com/match-lifecycle/internal/redis"
	"github.com/match-lifecycle/internal/service"
	"github.com/match-lifecycle/internal/websocket"
	"github.com/match-lifecycle/internal/worker"
)

// store is what the server needs from a storage driver
type store interface {
	service.Store
	worker.RatingSource
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
		cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}

	// Setup structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
		if cfg.Auth.JWTSecret == "" {
			logger.Error("no JWT secret configured; set auth.jwt_secret or JWT_SECRET")
			os.Exit(1)
		}
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var st store
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		mem := memory.NewStore()
		if cfg.Storage.SeedDemo {
			if err := seedDemo(ctx, mem); err != nil {
				logger.Error("failed to seed demo data", "error", err)
				os.Exit(1)
			}
			logger.Info("seeded demo players")
		}
		st = mem
		logger.Warn("using in-memory storage; data is lost on restart")
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		st = postgresRepo
	}

	m := metrics.New()

	// Initialize Redis for the regional ranking and the sweep lock
	var (
		rankingIndex service.RankingIndex
		sweepLock    service.SweepLock
	)
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without regional ranking", "error", err)
		} else {
			defer closeRedis(client, logger)
			index := redis.NewRankingIndex(client, logger)
			rankingIndex = index
			sweepLock = redis.NewSweepLock(client, cfg.Sweep.LockTTL, logger)
			logger.Info("connected to Redis")

			// Rebuild rankings from the store on startup (recovery)
			if err := worker.RebuildRankings(ctx, st, index, logger); err != nil {
				logger.Warn("failed to rebuild regional rankings on startup", "error", err)
			}
		}
	}

	// Initialize Kafka publisher for lifecycle events
	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		p, err := kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, continuing without events", "error", err)
		} else {
			defer func() {
				if err := p.Close(); err != nil {
					logger.Error("failed to close Kafka publisher", "error", err)
				}
			}()
			publisher = p
		}
	}

	policy, err := cfg.Scheduling.Policy()
	if err != nil {
		logger.Error("invalid scheduling configuration", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub; only participants may follow a match
	var approvalService *service.ApprovalService
	wsHub := websocket.NewHub(func(ctx context.Context, matchID, playerID string) error {
		_, err := approvalService.GetMatch(ctx, matchID, playerID)
		return err
	}, logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	approvalService = service.NewApprovalService(st, approval.NewMachine(policy, nil), publisher, wsHub, m, logger)
	matchmakingService := service.NewMatchmakingService(
		st,
		matchmaking.NewEngine(cfg.Matchmaking.Thresholds()),
		sweepLock,
		publisher,
		wsHub,
		m,
		logger,
	)

	// Initialize sweep worker
	sweepWorker := worker.NewSweepWorker(matchmakingService, &cfg.Sweep, logger)
	var trigger service.SweepTrigger
	if cfg.Sweep.OnJoin {
		trigger = sweepWorker
	}
	queueService := service.NewQueueService(st, trigger, m, logger)
	completionService := service.NewCompletionService(st, rankingIndex, publisher, wsHub, cfg.Ranking.BroadcastTop, m, logger)
	rankingService := service.NewRankingService(st, rankingIndex, &cfg.Ranking)

	// Start sweep worker
	if cfg.Sweep.Enabled {
		if err := sweepWorker.Start(ctx); err != nil {
			logger.Error("failed to start sweep worker", "error", err)
			os.Exit(1)
		}
		// match whatever was left waiting before a restart
		sweepWorker.Trigger()
	}

	// Initialize Kafka consumer for queue commands
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.CommandsTopic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, queueService, sweepWorker, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(handler.Services{
		Queue:       queueService,
		Matchmaking: matchmakingService,
		Approval:    approvalService,
		Completion:  completionService,
		Ranking:     rankingService,
	}, wsHub, auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer), m, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server first so no new commands arrive
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop sweep worker
	if err := sweepWorker.Stop(); err != nil {
		logger.Error("failed to stop sweep worker", "error", err)
	}

	// Stop WebSocket hub
	wsHub.Stop()

	logger.Info("server stopped")
}

func closeRedis(client *goredis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close Redis client", "error", err)
	}
}
