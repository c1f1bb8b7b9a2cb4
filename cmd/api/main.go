package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/api/handlers"
	"github.com/papertrail/backend/internal/cache/redis"
	"github.com/papertrail/backend/internal/embedding"
	"github.com/papertrail/backend/internal/guardrails"
	"github.com/papertrail/backend/internal/intent"
	"github.com/papertrail/backend/internal/llm"
	"github.com/papertrail/backend/internal/metrics"
	"github.com/papertrail/backend/internal/middleware/ratelimit"
	"github.com/papertrail/backend/internal/middleware/security"
	"github.com/papertrail/backend/internal/middleware/validation"
	"github.com/papertrail/backend/internal/pipeline"
	"github.com/papertrail/backend/internal/retrieval"
	"github.com/papertrail/backend/internal/storage/sqlite"
	"github.com/papertrail/backend/internal/synthesis"
	"github.com/papertrail/backend/internal/vector/milvus"
	"github.com/papertrail/backend/internal/vector/qdrant"
	"github.com/papertrail/backend/pkg/config"
	appLogger "github.com/papertrail/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting PaperTrail API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	index, closer, err := buildVectorIndex(cfg)
	if err != nil {
		appLogger.Fatal("Failed to create vector index", zap.Error(err))
	}
	if closer != nil {
		defer closer()
	}

	llmClient := llm.NewClient(cfg.LLM)

	var embedder retrieval.Embedder = embedding.NewService(llmClient)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		embedder = redis.NewCachingEmbedder(embedder, redisClient)
	}

	hybrid := cfg.Retrieval.HybridEnabled && cfg.Retrieval.Provider != "milvus"
	retriever := retrieval.NewRetriever(embedder, index, retrieval.Options{
		Hybrid:        hybrid,
		RRFK:          cfg.Retrieval.RRFK,
		DenseWeight:   cfg.Retrieval.DenseWeight,
		SparseWeight:  cfg.Retrieval.SparseWeight,
		Images:        cfg.Retrieval.ImagesEnabled && cfg.Retrieval.Provider != "milvus",
		ImageTopK:     cfg.Retrieval.ImageTopK,
		ImageMinScore: cfg.Retrieval.ImageMinScore,
	})

	classifier := intent.NewClassifier()
	synthesizer := synthesis.NewSynthesizer(llmClient)
	validator := guardrails.NewValidator()

	orchestrator := pipeline.NewOrchestrator(
		classifier,
		retriever,
		synthesizer,
		validator,
		sqliteClient,
		pipeline.Options{
			TopK:        cfg.Retrieval.TopK,
			Interactive: cfg.Pipeline.Interactive,
		},
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	queryHandler := handlers.NewQueryHandler(orchestrator, sqliteClient, redisClient)
	searchHandler := handlers.NewSearchHandler(classifier, retriever)
	reviewHandler := handlers.NewReviewHandler(orchestrator, sqliteClient)
	sessionHandler := handlers.NewSessionHandler(sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(orchestrator, sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)
	api.Post("/feedback", queryHandler.SubmitFeedback)

	api.Post("/search/hybrid", searchHandler.HandleSearch)
	api.Post("/search/images", searchHandler.HandleImageSearch)

	api.Get("/reviews", reviewHandler.ListPending)
	api.Get("/reviews/:id", reviewHandler.GetReview)
	api.Post("/reviews/:id/resolve", reviewHandler.ResolveReview)

	api.Post("/sessions", sessionHandler.CreateSession)
	api.Get("/sessions", sessionHandler.ListSessions)
	api.Get("/sessions/:id", sessionHandler.GetSession)
	api.Delete("/sessions/:id", sessionHandler.DeleteSession)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/query", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

func buildVectorIndex(cfg *config.Config) (retrieval.VectorIndex, func() error, error) {
	switch cfg.Retrieval.Provider {
	case "milvus":
		client, err := milvus.NewClient(
			cfg.Milvus.Endpoint,
			cfg.Milvus.APIKey,
			cfg.Milvus.CollectionName,
			cfg.Milvus.VectorDim,
		)
		if err != nil {
			return nil, nil, err
		}
		if err := client.CreateCollection(context.Background()); err != nil {
			client.Close()
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		client := qdrant.NewClient(cfg.Qdrant)
		if err := client.EnsureCollections(context.Background()); err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	}
}
