package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/rohanjaggi/hdb-prediction/internal/cache"
	"github.com/rohanjaggi/hdb-prediction/internal/config"
	"github.com/rohanjaggi/hdb-prediction/internal/encoder"
	"github.com/rohanjaggi/hdb-prediction/internal/handler"
	"github.com/rohanjaggi/hdb-prediction/internal/logger"
	"github.com/rohanjaggi/hdb-prediction/internal/observability"
	"github.com/rohanjaggi/hdb-prediction/internal/oracle"
	"github.com/rohanjaggi/hdb-prediction/internal/repository"
	"github.com/rohanjaggi/hdb-prediction/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = log.Sync() }()

	log.Info("HDB housing price assistant",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing(ctx, log, cfg.Tracing, Version)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	gin.SetMode(cfg.Server.GinMode)

	// Database
	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		return err
	}
	defer repo.Close()
	log.Info("connected to PostgreSQL")

	// Category snapshot, read-only from here on
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	snapshot, err := encoder.Load(loadCtx, repo)
	cancel()
	if err != nil {
		return err
	}
	log.Info("category encodings loaded",
		zap.Int("towns", len(snapshot.Towns())),
		zap.Int("flat_types", len(snapshot.FlatTypes())))

	// Pricing oracle
	booster, err := oracle.LoadBooster(cfg.Valuation.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to load pricing model %s: %w", cfg.Valuation.ModelPath, err)
	}
	pricing, err := oracle.NewMemo(booster, cfg.Valuation.CacheSize)
	if err != nil {
		return fmt.Errorf("failed to create oracle cache: %w", err)
	}
	log.Info("pricing model loaded",
		zap.String("path", cfg.Valuation.ModelPath),
		zap.Int("trees", booster.NumTrees()),
		zap.Int("cache_size", cfg.Valuation.CacheSize))

	// Language model
	var openaiClient *service.OpenAIClient
	if cfg.OpenAI.Enabled {
		openaiClient = service.NewOpenAIClient(&cfg.OpenAI, log)
	}

	var llm service.LanguageModel
	switch cfg.LLM.Provider {
	case "gemini":
		if !cfg.Gemini.Enabled {
			return errors.New("LLM_PROVIDER=gemini requires GEMINI_API_KEY")
		}
		gemini, err := service.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		llm = gemini
	default:
		if openaiClient == nil {
			return errors.New("LLM_PROVIDER=openai requires OPENAI_API_KEY")
		}
		llm = openaiClient
	}
	log.Info("language model ready",
		zap.String("model", llm.Name()),
		zap.Duration("timeout", cfg.LLM.Timeout))

	// Embeddings only come from the OpenAI-compatible endpoint
	var embedder service.Embedder
	if openaiClient != nil && cfg.OpenAI.EmbeddingModel != "" {
		embedder = openaiClient
	} else {
		log.Warn("no embedding provider; similar-question search disabled")
	}

	// Recommendation cache
	var statsCache service.StatsCache
	if cfg.Redis.Enabled {
		rdb := cache.NewRedisClient(cfg.Redis)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := cache.Ping(pingCtx, rdb)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, recommendation cache disabled", zap.Error(err))
		} else {
			statsCache = cache.NewRecommendationCache(rdb, cfg.Recommendation.CacheTTL, log)
			log.Info("recommendation cache enabled", zap.String("addr", cfg.Redis.Address))
		}
	}

	// Services
	extractor, err := service.NewIntentExtractor(llm, cfg.LLM.Timeout, log)
	if err != nil {
		return err
	}
	valuation := service.NewValuationService(snapshot, pricing, cfg.Valuation.RemainingLease, cfg.Valuation.DefaultDiscount, log)
	recommender := service.NewRecommendationService(repo, statsCache, func() int {
		return cfg.ReferenceYear(time.Now())
	}, log)
	orchestrator := service.NewOrchestrator(extractor, recommender, valuation, llm, repo, embedder,
		service.OrchestratorConfig{
			MaxInFlight: cfg.Valuation.MaxInFlight,
			LLMTimeout:  cfg.LLM.Timeout,
		}, log)

	// Handlers
	analyzeHandler := handler.NewAnalyzeHandler(orchestrator)
	valuationHandler := handler.NewValuationHandler(valuation, recommender, snapshot)
	embeddingHandler := handler.NewEmbeddingHandler(embedder, repo)
	feedbackHandler := handler.NewFeedbackHandler(repo)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	if cfg.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(cfg.Server.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if err := repo.Ping(c.Request.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     status,
			"service":    "hdb-assistant",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		// Assistant
		apiV1.POST("/analyze", analyzeHandler.Analyze)
		apiV1.POST("/analyze/stream", analyzeHandler.AnalyzeStream)

		// Calculators
		apiV1.POST("/predict", valuationHandler.Predict)
		apiV1.POST("/bto-price", valuationHandler.BTOPrice)
		apiV1.POST("/affordability", valuationHandler.Affordability)
		apiV1.GET("/recommendations", valuationHandler.Recommendations)
		apiV1.GET("/catalog", valuationHandler.Catalog)

		// History
		apiV1.GET("/analyses/similar", embeddingHandler.Similar)
		apiV1.POST("/feedback", feedbackHandler.Submit)
	}

	setupStaticFiles(router, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
