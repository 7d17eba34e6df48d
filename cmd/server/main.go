package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	grpcapi "github.com/yedhukrishnan/performance-backend/internal/api/grpc"
	"github.com/yedhukrishnan/performance-backend/internal/api/rest"
	"github.com/yedhukrishnan/performance-backend/internal/api/websocket"
	"github.com/yedhukrishnan/performance-backend/internal/auth"
	"github.com/yedhukrishnan/performance-backend/internal/config"
	"github.com/yedhukrishnan/performance-backend/internal/counter"
	"github.com/yedhukrishnan/performance-backend/internal/fanout"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"github.com/yedhukrishnan/performance-backend/internal/logging"
	"github.com/yedhukrishnan/performance-backend/internal/registry"
	"github.com/yedhukrishnan/performance-backend/internal/relay"
	"github.com/yedhukrishnan/performance-backend/internal/storage"
	"github.com/yedhukrishnan/performance-backend/internal/stream"
	"github.com/yedhukrishnan/performance-backend/internal/system"
	"github.com/yedhukrishnan/performance-backend/internal/validation"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully", zap.String("path", *configPath))

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.NewPostgresClient(startupCtx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected successfully")

	if cfg.Seed.CategoriesFile != "" {
		categories, err := storage.LoadCategoriesFile(cfg.Seed.CategoriesFile)
		if err != nil {
			logger.Fatal("Failed to read categories", zap.Error(err))
		}
		if err := db.SeedCategories(startupCtx, categories); err != nil {
			logger.Fatal("Failed to seed categories", zap.Error(err))
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	defer rdb.Close()

	// The registry may come up later; streams answer 503 until it does.
	reg := registry.New(rdb, cfg.Stream.SubscriptionTTL, logger)
	if err := reg.Ping(startupCtx); err != nil {
		logger.Warn("Subscription registry not reachable yet", zap.Error(err))
	}

	authService := auth.NewAuthService(db, cfg.Auth, logger)
	resolver := identity.NewResolver(authService.JWT(), cfg.Stream.ClientCookieName, cfg.Stream.ClientCookieMaxAge)

	table := live.NewTable()
	streams := stream.NewManager(reg, table, cfg.Stream.SendBuffer, cfg.Stream.HeartbeatInterval, logger)
	publisher := fanout.NewPublisher(reg, table, logger)

	var eventRelay *relay.RabbitMQ
	if cfg.Relay.Enabled {
		nodeID := uuid.NewString()
		eventRelay, err = relay.NewRabbitMQ(cfg.Relay, nodeID, logger)
		if err != nil {
			logger.Fatal("Failed to connect relay", zap.Error(err))
		}
		publisher.SetRelay(eventRelay)
		logger.Info("Cross-process relay enabled", zap.String("node_id", nodeID))
	}

	counters := counter.NewService(db, publisher, logger)

	validator, err := validation.New()
	if err != nil {
		logger.Fatal("Failed to compile request schemas", zap.Error(err))
	}

	hub := websocket.NewHub(streams, cfg.Server.CORSOrigins, logger)

	restServer := rest.NewServer(cfg, rest.Dependencies{
		Articles:  db,
		Counters:  counters,
		Auth:      authService,
		Resolver:  resolver,
		Streams:   streams,
		Validator: validator,
		WSHub:     hub,
		Health: map[string]rest.Pinger{
			"database": db,
			"registry": reg,
		},
	}, logger)

	grpcServer := grpcapi.NewServer(cfg.Server.GRPCPort, grpcapi.NewCounterStreamServer(streams, logger), logger)

	components := system.Components{
		REST:            restServer,
		GRPC:            grpcServer,
		Hub:             hub,
		Janitor:         reg,
		JanitorInterval: cfg.Stream.JanitorInterval,
		Publisher:       publisher,
		Connections:     table,
		Registry:        reg,
	}
	if eventRelay != nil {
		components.Relay = eventRelay
	}
	lifecycle := system.NewLifecycleManager(components, logger)

	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("Performance backend started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Performance backend stopped", zap.Any("status", lifecycle.GetCurrentStatus()))
}
