package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"go.uber.org/zap"

	"github.com/liveexchange/auction-backend/internal/api/rest"
	"github.com/liveexchange/auction-backend/internal/api/websocket"
	"github.com/liveexchange/auction-backend/internal/infrastructure/cache"
	"github.com/liveexchange/auction-backend/internal/infrastructure/config"
	"github.com/liveexchange/auction-backend/internal/infrastructure/database"
	"github.com/liveexchange/auction-backend/internal/infrastructure/lock"
	"github.com/liveexchange/auction-backend/internal/infrastructure/repository"
	"github.com/liveexchange/auction-backend/internal/infrastructure/telemetry"
	auctionsvc "github.com/liveexchange/auction-backend/internal/service/auction"
	"github.com/liveexchange/auction-backend/internal/service/auth"
	"github.com/liveexchange/auction-backend/internal/service/bidding"
	categorysvc "github.com/liveexchange/auction-backend/internal/service/category"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create infrastructure logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx := context.Background()

	provider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "auction-backend",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	pool, err := database.Connect(ctx, &cfg.Database, zapLogger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Locking, rate limiting, and shared counters all ride on Redis.
	// With the distributed lock disabled the whole Redis dependency is
	// optional and the service runs single-node.
	var locker lock.AuctionLocker
	var limiter cache.RateLimiter
	var counter websocket.ConnectedCounter

	if cfg.Lock.DistributedEnabled {
		redisClient, err := cache.NewRedisClient(&cfg.Redis, zapLogger)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer cache.Close(redisClient, zapLogger)

		locker = lock.NewRedisLocker(redisClient, cfg.Lock.RetryInterval, zapLogger)
		limiter = cache.NewRedisRateLimiter(redisClient, zapLogger)
		counter = cache.NewStatsCounter(redisClient, zapLogger)
	} else {
		logger.Warn("distributed lock disabled, falling back to in-process mutex")
		locker = lock.NewLocalLocker(cfg.Lock.RetryInterval)
	}

	auctionRepo := repository.NewAuctionRepository(pool)
	bidRepo := repository.NewBidRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)

	authSvc := auth.NewService(userRepo, auth.Config{
		Secret:             []byte(cfg.Security.JWTSecret),
		Issuer:             cfg.Security.TokenIssuer,
		Audience:           cfg.Security.TokenAudience,
		AccessTokenExpiry:  cfg.Security.TokenExpiry,
		RefreshTokenExpiry: cfg.Security.RefreshTokenExpiry,
	}, logger)
	categorySvc := categorysvc.NewService(categoryRepo, logger)

	// The hub and the services reference each other through the
	// publisher, so wire the hub last and hand the services a
	// late-bound publisher.
	publisher := &lazyPublisher{}

	biddingSvc := bidding.NewService(auctionRepo, locker, publisher, logger, cfg.Lock.WaitBudget, cfg.Lock.HoldTTL)
	auctionSvc := auctionsvc.NewService(auctionRepo, locker, publisher, logger, cfg.Lock.WaitBudget, cfg.Lock.HoldTTL)

	hub := websocket.NewHub(biddingSvc, auctionSvc, authSvc, counter, logger)
	defer hub.Close()
	publisher.delegate = websocket.NewPublisher(hub)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Sweeper.Enabled {
		sweeper := auctionsvc.NewSweeper(auctionSvc, logger, cfg.Sweeper.Interval, cfg.Sweeper.Batch)
		go sweeper.Run(runCtx)
	}
	go hub.RunLiveStats(runCtx, 10*time.Second)

	handler := rest.NewHandler(authSvc, auctionSvc, biddingSvc, categorySvc, bidRepo, logger)
	server := rest.NewServer(&cfg.Server, handler, hub, limiter, logger)

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
