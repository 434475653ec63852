package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adreel/adreel-api/pkg/cache"
	"github.com/adreel/adreel-api/pkg/config"
	"github.com/adreel/adreel-api/pkg/db"
	"github.com/adreel/adreel-api/pkg/db/queries"
	"github.com/adreel/adreel-api/pkg/handlers"
	"github.com/adreel/adreel-api/pkg/llm"
	"github.com/adreel/adreel-api/pkg/middleware"
	"github.com/adreel/adreel-api/pkg/pipeline"
	"github.com/adreel/adreel-api/pkg/progress"
	"github.com/adreel/adreel-api/pkg/render"
	"github.com/adreel/adreel-api/pkg/services"
	"github.com/adreel/adreel-api/pkg/storage"
	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	tokenTTL       = 24 * time.Hour
	maxUploadBytes = 10 << 20
)

func main() {
	log.SetOutput(gin.DefaultWriter)
	log.SetFormatter(&log.JSONFormatter{})
	log.Info("Starting AdReel API...")

	cfg := config.LoadConfig()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		log.SetLevel(log.InfoLevel)
	}

	if err := db.InitDB(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	baseCtx, stop := context.WithCancel(context.Background())
	defer stop()

	llmClient, closeLLM, err := newLLMClient(baseCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	defer closeLLM()

	var broker progress.Broker = progress.NewLocalBroker()
	if cfg.RedisURL != "" {
		rdb, err := progress.ConnectRedis(baseCtx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		broker = progress.NewRedisBroker(rdb)
		log.Info("Progress events fan out through Redis.")
	}

	sceneCache, err := cache.NewSceneCache(cfg.CacheDir, cfg.DevCachePrompt)
	if err != nil {
		log.Fatalf("Failed to initialize scene cache: %v", err)
	}
	images, err := storage.NewImageStore(cfg.UploadDir, maxUploadBytes)
	if err != nil {
		log.Fatalf("Failed to initialize upload storage: %v", err)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		log.Fatalf("Failed to create work directory %s: %v", cfg.WorkDir, err)
	}

	stitcher := render.NewFFmpegStitcher(cfg.FFmpegPath)
	costs := services.NewCostTracker(cfg.CostPerSecond)

	orchestrator := &pipeline.Orchestrator{
		LLM:          llmClient,
		Store:        queries.GenerationStore{},
		Renderer:     render.NewHTTPRenderer(cfg.VideoRendererURL, cfg.WorkDir),
		Stitcher:     stitcher,
		Cache:        sceneCache,
		Costs:        costs,
		Events:       broker,
		SceneCap:     cfg.MaxSceneSeconds,
		WorkDir:      cfg.WorkDir,
		MediaBaseURL: cfg.MediaBaseURL,
	}

	tokens := services.NewTokenService(cfg.SecretKey, tokenTTL)
	apiHandlers := handlers.NewHandlers(baseCtx, cfg, tokens)
	apiHandlers.Pipeline = orchestrator
	apiHandlers.Broker = broker
	apiHandlers.Stitcher = stitcher
	apiHandlers.Images = images

	router := gin.Default()
	router.MaxMultipartMemory = maxUploadBytes
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static(cfg.MediaBaseURL, cfg.WorkDir)
	router.POST("/api/generations/render-callback", apiHandlers.HandleRenderCallback)

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", apiHandlers.RegisterUser)
		authRoutes.POST("/login", apiHandlers.LoginUser)
	}

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(tokens))
	{
		protected.GET("/profile", apiHandlers.GetProfile)
		protected.DELETE("/profile", apiHandlers.DeleteUser)

		gens := protected.Group("/generations")
		{
			gens.POST("", apiHandlers.CreateGeneration)
			gens.GET("", apiHandlers.ListGenerations)
			gens.GET("/:id", apiHandlers.GetGeneration)
			gens.DELETE("/:id", apiHandlers.DeleteGeneration)
			gens.POST("/:id/start", apiHandlers.StartGeneration)
			gens.POST("/:id/cancel", apiHandlers.CancelGeneration)
			gens.GET("/:id/progress", apiHandlers.GetGenerationProgress)
			gens.GET("/:id/derivatives", apiHandlers.ListDerivatives)
			gens.POST("/:id/sessions", apiHandlers.CreateEditingSession)
			gens.GET("/:id/sessions", apiHandlers.ListEditingSessions)
		}

		sessions := protected.Group("/sessions")
		{
			sessions.GET("/:id", apiHandlers.GetEditingSession)
			sessions.PUT("/:id", apiHandlers.SaveEditingSession)
			sessions.DELETE("/:id/clips/:clipId", apiHandlers.DeleteClip)
			sessions.PATCH("/:id/clips/:clipId/position", apiHandlers.MoveClip)
			sessions.PATCH("/:id/clips/:clipId/trim", apiHandlers.TrimClip)
			sessions.POST("/:id/clips/:clipId/split", apiHandlers.SplitClip)
			sessions.POST("/:id/merge", apiHandlers.MergeClips)
			sessions.POST("/:id/export", apiHandlers.ExportEditingSession)
		}

		uploads := protected.Group("/uploads")
		{
			uploads.POST("/images", apiHandlers.UploadImage)
			uploads.GET("/images", apiHandlers.ListImages)
		}
	}

	ws := router.Group("/ws")
	ws.Use(middleware.AuthMiddleware(tokens))
	{
		ws.GET("/generations/:id/progress", apiHandlers.ProgressWebSocket)
		ws.GET("/generations/:id/interactive", apiHandlers.InteractiveWebSocket)
	}

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Server listening on %s:%s", cfg.Host, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Running pipelines observe the cancelled base context and mark their rows failed.
	stop()
	apiHandlers.Wait()
	log.Info("Server exited gracefully.")
}

func newLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, func(), error) {
	switch cfg.LLMProvider {
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	default:
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}
