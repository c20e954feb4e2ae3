package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/featureflags"
	"github.com/herdsphere/herdsphere/internal/handler"
	"github.com/herdsphere/herdsphere/internal/infrastructure/logger"
	"github.com/herdsphere/herdsphere/internal/infrastructure/redis"
	"github.com/herdsphere/herdsphere/internal/observability/metrics"
	"github.com/herdsphere/herdsphere/internal/observability/tracing"
	"github.com/herdsphere/herdsphere/internal/repository"
	"github.com/herdsphere/herdsphere/internal/security/audit"
	"github.com/herdsphere/herdsphere/internal/security/auth"
	"github.com/herdsphere/herdsphere/internal/security/middleware"
	"github.com/herdsphere/herdsphere/internal/security/ratelimit"
	"github.com/herdsphere/herdsphere/internal/service"
	"github.com/herdsphere/herdsphere/internal/worker"
	"github.com/herdsphere/herdsphere/pkg/cache"
	"github.com/herdsphere/herdsphere/pkg/config"
	"github.com/herdsphere/herdsphere/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting HerdSphere server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "herdsphere", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Open the document store
	var store docstore.Store
	var pool *database.ConnectionPool
	switch cfg.StorageDriver {
	case "postgres":
		pool, err = database.NewConnectionPool(ctx, &database.Config{
			Host:     cfg.DatabaseHost,
			Port:     cfg.DatabasePort,
			User:     cfg.DatabaseUser,
			Password: cfg.DatabasePassword,
			Database: cfg.DatabaseName,
			SSLMode:  cfg.DatabaseSSLMode,
		}, log)
		if err != nil {
			log.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		pg := docstore.NewPostgresStore(pool.GetDB(), log)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to ensure schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = pg
	case "memory":
		log.Warn("using in-memory storage, data will not survive a restart")
		store = docstore.NewMemoryStore()
	}
	store = docstore.WithRetry(docstore.WithBreaker(store, log), nil, log)

	// 5. Initialize Redis (optional; enables cross-process stock feed)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// 6. Initialize repositories
	farmRepo := repository.NewFarmRepository(store, log)
	userRepo := repository.NewUserRepository(store, log)
	metaRepo := repository.NewMetaRepository(store, log)
	animalRepo := repository.NewAnimalRepository(store, log)

	// 7. Initialize services
	auditLogger := audit.NewLogger(log)
	readCache := cache.New()

	purgeService := service.NewPurgeService(farmRepo, userRepo, metaRepo, animalRepo, log)
	farmService := service.NewFarmService(farmRepo, userRepo, metaRepo, purgeService, auditLogger, log)
	membershipService := service.NewMembershipService(farmRepo, userRepo, auditLogger, log)
	stockService := service.NewStockService(metaRepo, readCache, auditLogger, log)
	animalService := service.NewAnimalService(animalRepo, farmService, stockService, log)

	// 8. Initialize handlers
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "herdsphere")
	joinLimiter := ratelimit.NewLimiter(cfg.JoinAttemptsPerMinute, time.Minute)

	farmsHandler := handler.NewFarmsHandler(farmService, log)
	membershipHandler := handler.NewMembershipHandler(membershipService, joinLimiter, log)
	stockHandler := handler.NewStockHandler(farmService, stockService, log)
	animalsHandler := handler.NewAnimalsHandler(animalService, log)
	healthHandler := handler.NewHealthRecordsHandler(animalService, log)

	stockFeed := handler.NewStockFeedHub(farmService, redisClient, cfg.CORSAllowedOrigins, log)
	stockService.SetPublisher(stockFeed)
	go stockFeed.Run(ctx)

	// 9. Setup HTTP routes
	api := http.NewServeMux()
	api.HandleFunc("POST /api/farms", farmsHandler.Create)
	api.HandleFunc("GET /api/farms", membershipHandler.ListMine)
	api.HandleFunc("GET /api/farms/{id}", farmsHandler.Get)
	api.HandleFunc("DELETE /api/farms/{id}", farmsHandler.Delete)
	api.HandleFunc("POST /api/farms/join", membershipHandler.Join)
	api.HandleFunc("POST /api/farms/{id}/leave", membershipHandler.Leave)
	api.HandleFunc("PUT /api/me/current-farm", membershipHandler.SwitchCurrentFarm)

	api.HandleFunc("GET /api/farms/{id}/profile", farmsHandler.GetProfile)
	api.HandleFunc("PUT /api/farms/{id}/profile", farmsHandler.UpdateProfile)
	api.HandleFunc("POST /api/farms/{id}/breeds", farmsHandler.AddBreed)
	api.HandleFunc("GET /api/farms/{id}/breeds", farmsHandler.ListBreeds)
	api.HandleFunc("DELETE /api/farms/{id}/breeds/{breedId}", farmsHandler.RemoveBreed)

	api.HandleFunc("GET /api/farms/{id}/stock", stockHandler.Get)
	api.HandleFunc("POST /api/farms/{id}/stock/adjust", stockHandler.Override)
	api.HandleFunc("GET /api/farms/{id}/stock/history", stockHandler.History)

	api.HandleFunc("POST /api/farms/{id}/animals", animalsHandler.Create)
	api.HandleFunc("GET /api/farms/{id}/animals", animalsHandler.List)
	api.HandleFunc("GET /api/farms/{id}/animals/{animalId}", animalsHandler.Get)
	api.HandleFunc("DELETE /api/farms/{id}/animals/{animalId}", animalsHandler.Delete)
	api.HandleFunc("PUT /api/farms/{id}/animals/{animalId}/status", animalsHandler.SetStatus)
	api.HandleFunc("PUT /api/farms/{id}/animals/{animalId}/records/{date}", animalsHandler.UpsertRecord)
	api.HandleFunc("GET /api/farms/{id}/animals/{animalId}/records", animalsHandler.ListRecords)
	api.HandleFunc("POST /api/farms/{id}/animals/{animalId}/health-events", healthHandler.RecordHealthEvent)
	api.HandleFunc("GET /api/farms/{id}/animals/{animalId}/health-events", healthHandler.ListHealthEvents)
	api.HandleFunc("POST /api/farms/{id}/animals/{animalId}/vaccinations", healthHandler.RecordVaccination)
	api.HandleFunc("GET /api/farms/{id}/animals/{animalId}/vaccinations", healthHandler.ListVaccinations)

	// The metrics middleware sits directly around the mux so it sees the
	// matched route pattern for its path label.
	protectedAPI := middleware.RequireAuth(tokenManager, log,
		otelhttp.NewHandler(metrics.HTTPMetricsMiddleware(api), "api"))

	// The websocket route skips the metrics middleware: its response writer
	// does not implement http.Hijacker.
	wsHandler := middleware.RequireAuth(tokenManager, log, stockFeed)

	mux := http.NewServeMux()
	mux.Handle("/api/", withCORS(cfg.CORSAllowedOrigins, protectedAPI))
	mux.Handle("GET /ws/farms/{id}/stock", wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if pool != nil {
			if err := pool.Health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("database not ready"))
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("redis not ready"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	rootHandler := middleware.RequestID(mux)

	// 10. Start background workers
	if featureflags.EnabledDefault(featureflags.Reaper, true) {
		reaper := worker.NewReaperWorker(farmRepo, userRepo, purgeService, log, cfg.ReaperInterval)
		go reaper.Start(ctx)
	}
	if featureflags.EnabledDefault(featureflags.StockSnapshots, true) {
		snapshots := worker.NewSnapshotWorker(farmRepo, stockService, log, cfg.SnapshotInterval)
		go snapshots.Start(ctx)
	}

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageDriver),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// withCORS honors the configured browser origins.
func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(allowed) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", allowed[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
