package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"miniapp-games/internal/config"
	"miniapp-games/internal/database"
	"miniapp-games/internal/handlers"
	"miniapp-games/internal/logger"
	"miniapp-games/internal/metrics"
	"miniapp-games/internal/middleware"
	"miniapp-games/internal/services"
)

const serviceName = "miniapp-games"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatalf("Migration error: %v", err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(serviceName, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	var redisService *services.RedisService
	if cfg.WalletStore != config.WalletStoreMemory {
		var err error
		redisService, err = services.NewRedisService(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisService.Close()
	}

	var db *database.DB
	if cfg.WalletStore == config.WalletStorePostgres {
		if err := database.MigrateUp(cfg.DatabaseURL, zl); err != nil {
			return err
		}
		var err error
		db, err = database.NewConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	memory := services.NewMemoryStore(cfg.StartingBalance)

	var store services.WalletStore
	switch cfg.WalletStore {
	case config.WalletStoreMemory:
		store = memory
	case config.WalletStoreRedis:
		store = redisService
	case config.WalletStorePostgres:
		store = services.NewPostgresStore(db, cfg.StartingBalance)
	case config.WalletStoreREST:
		store = services.NewRESTStore(cfg.BaaSURL, cfg.BaaSServiceKey, cfg.StartingBalance)
	}

	var seeds services.SeedStore = memory
	if redisService != nil {
		seeds = redisService
	}

	var events services.EventPublisher = services.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := services.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaRoundsTopic, zl)
		defer publisher.Close()
		events = publisher
	}

	m := metrics.New()
	metricsServer := m.StartServer(cfg.MetricsPort, func(ctx context.Context) error {
		if redisService != nil {
			if err := redisService.Ping(ctx); err != nil {
				return err
			}
		}
		if db != nil {
			return db.Ping(ctx)
		}
		return nil
	})

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		zl.Warn("JWT_SECRET not set; using an insecure development secret")
		jwtSecret = "local-development-secret"
	}
	jwtService := services.NewJWTService(jwtSecret)

	hub := handlers.NewWebSocketHub(zl)
	defer hub.Close()

	fairness := services.NewFairnessService(seeds, zl)
	sessions := services.NewSessionManager(&services.RoundDeps{
		Game:              cfg.Games.Dice,
		Outcomes:          fairness,
		Settlement:        services.NewSettlementBridge(store, m, zl),
		Feed:              services.NewHistoryFeed(store, cfg.Games.Dice.GameID, cfg.WalletBucket, cfg.HistoryLimit, m, zl),
		Broadcaster:       hub,
		Events:            events,
		Metrics:           m,
		Logger:            zl,
		SettlementTimeout: cfg.SettlementTimeout,
	})

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sessions.CleanupIdle(10 * time.Minute)
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		revoked middleware.RevocationChecker
		revoker handlers.SessionRevoker
	)
	if redisService != nil {
		revoked, revoker = redisService, redisService
	}

	diceHandler := handlers.NewDiceHandler(sessions, fairness, zl)
	userHandler := handlers.NewUserHandler(sessions, revoker, zl)
	wsHandler := handlers.NewWebSocketHandler(hub, sessions, zl)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORS())

	router.POST("/api/games/verify", diceHandler.Verify)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService, revoked, zl))
	if redisService != nil {
		protected.Use(middleware.RateLimitMiddleware(redisService, services.DefaultRateLimitBets, zl))
	}
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)

		protected.GET("/ws", wsHandler.HandleWebSocket)

		dice := protected.Group("/games/dice")
		{
			dice.GET("/state", diceHandler.GetState)
			dice.POST("/threshold", diceHandler.SetThreshold)
			dice.POST("/direction", diceHandler.SetDirection)
			dice.POST("/quote", diceHandler.Quote)
			dice.POST("/roll", diceHandler.Roll)
			dice.POST("/credit/retry", diceHandler.RetryCredit)
			dice.POST("/refresh", diceHandler.Refresh)
			dice.GET("/history", diceHandler.GetHistory)

			dice.GET("/fairness", diceHandler.GetFairness)
			dice.POST("/fairness/client-seed", diceHandler.SetClientSeed)
			dice.POST("/fairness/rotate", diceHandler.RotateSeed)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("wallet_store", cfg.WalletStore),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http server shutdown failed", zap.Error(err))
	}
	// rounds in flight settle before the stores close
	sessions.Shutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("metrics server shutdown failed", zap.Error(err))
	}
	return nil
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: %s migrate [up|down|status] [steps]", serviceName)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	zl, err := logger.New(serviceName, os.Getenv("ENV"))
	if err != nil {
		return err
	}
	defer zl.Sync()

	switch command := os.Args[2]; command {
	case "up":
		return database.MigrateUp(databaseURL, zl)
	case "down":
		steps := 1
		if len(os.Args) > 3 {
			if steps, err = strconv.Atoi(os.Args[3]); err != nil {
				return fmt.Errorf("invalid steps %q: %w", os.Args[3], err)
			}
		}
		return database.MigrateDown(databaseURL, steps, zl)
	case "status":
		return database.MigrateStatus(databaseURL, zl)
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
