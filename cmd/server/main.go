package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ayush/research-assistant/backend/internal/auth"
	"github.com/ayush/research-assistant/backend/internal/config"
	"github.com/ayush/research-assistant/backend/internal/llm"
	"github.com/ayush/research-assistant/backend/internal/middleware"
	"github.com/ayush/research-assistant/backend/internal/research"
	"github.com/ayush/research-assistant/backend/internal/respond"
	"github.com/ayush/research-assistant/backend/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		logger.Fatal("postgres migrate", zap.Error(err))
	}

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		logger.Fatal("mongo indexes", zap.Error(err))
	}

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)

	// ── MinIO ────────────────────────────────────────────────
	minioStore, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		logger.Fatal("minio connect", zap.Error(err))
	}

	// ── Generation backend ───────────────────────────────────
	backend, err := llm.New(ctx, llm.Options{
		Kind:           cfg.GenerationBackend,
		APIKey:         cfg.LLMAPIKey,
		Model:          cfg.LLMModel,
		IntegrationURL: cfg.IntegrationURL,
	}, minioStore)
	if err != nil {
		logger.Fatal("generation backend", zap.Error(err))
	}
	if cfg.LLMAPIKey == "" {
		logger.Warn("no LLM API key configured; research jobs will fail")
	}
	logger.Info("generation backend ready", zap.String("kind", cfg.GenerationBackend), zap.String("model", cfg.LLMModel))

	// ── Research pipeline ────────────────────────────────────
	dispatcher := research.NewDispatcher(cfg.MaxConcurrentJobs, logger.Named("dispatcher"))
	svc := research.NewService(research.Deps{
		Users:         pgStore,
		Jobs:          mongoStore,
		Reports:       mongoStore,
		Files:         mongoStore,
		Blobs:         minioStore,
		Backend:       backend,
		Dispatcher:    dispatcher,
		Aggregator:    research.NewAggregator(mongoStore, research.LiveDataPool, nil),
		Logger:        logger.Named("research"),
		SignupCredits: cfg.SignupCredits,
	})

	// ── Handlers ─────────────────────────────────────────────
	authHandler := auth.NewHandler(pgStore, sessions, cfg.SignupCredits, logger.Named("auth"))
	researchHandler := research.NewHandler(svc, logger.Named("http"))

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger.Named("access")))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(middleware.RequireAuth(sessions)).Get("/me", authHandler.Me)
		})
		r.Get("/users/{userID}", authHandler.User)
		researchHandler.Routes(r)
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		logger.Info("backend listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := svc.Shutdown(shutCtx); err != nil {
		logger.Warn("research shutdown", zap.Error(err), zap.Int("in_flight", dispatcher.InFlight()))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level == "debug" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
