package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/yuriguchi/testy/internal/cascade"
	"github.com/yuriguchi/testy/internal/config"
	"github.com/yuriguchi/testy/internal/events"
	"github.com/yuriguchi/testy/internal/handler"
	"github.com/yuriguchi/testy/internal/history"
	"github.com/yuriguchi/testy/internal/repository"
	"github.com/yuriguchi/testy/internal/service"
	"github.com/yuriguchi/testy/internal/storage"
)

const statusSeedPath = "configs/statuses.yaml"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var logHandler slog.Handler
	if cfg.Logging.Format == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	slog.Info("starting service",
		"service", cfg.Service.Name,
		"environment", cfg.Service.Environment,
		"port", cfg.Service.HTTPPort,
	)

	// Initialize PostgreSQL connection
	db, err := repository.Connect(cfg.Database)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("database connection established",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database,
	)

	// Initialize Redis for the delete/archive preview cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer redisClient.Close()

	// Initialize Kafka producer (nil when disabled)
	producer, err := events.NewProducer(cfg.Kafka, logger)
	if err != nil {
		slog.Error("failed to initialize event producer", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
	}

	// Initialize object storage (nil when disabled)
	blobs, err := storage.NewS3Store(context.Background(), cfg.Storage)
	if err != nil {
		slog.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	projectRepo := repository.NewProjectRepository(db)
	suiteRepo := repository.NewSuiteRepository(db)
	caseRepo := repository.NewCaseRepository(db)
	planRepo := repository.NewPlanRepository(db)
	testRepo := repository.NewTestRepository(db)
	resultRepo := repository.NewResultRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	labelRepo := repository.NewLabelRepository(db)
	attrRepo := repository.NewAttributeRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Initialize core components
	hist := history.NewStore(db)
	registry := cascade.NewRegistry()
	previewCache := cascade.NewPreviewCache(redisClient, cfg.Cache.TTL)
	engine := cascade.NewEngine(db, registry, previewCache)

	// Initialize services
	projectService := service.NewProjectService(db, projectRepo, userRepo, logger)
	suiteService := service.NewSuiteService(db, suiteRepo, caseRepo, projectRepo, logger)
	caseService := service.NewCaseService(db, caseRepo, suiteRepo, projectRepo, labelRepo,
		attrRepo, attachmentRepo, hist, producer, logger)
	planService := service.NewPlanService(db, planRepo, testRepo, caseRepo, projectRepo,
		hist, producer, logger)
	testService := service.NewTestService(db, testRepo, planRepo, userRepo, producer, logger)
	resultService := service.NewResultService(db, resultRepo, testRepo, caseRepo, projectRepo,
		statusRepo, attrRepo, hist, producer, logger)
	copyService := service.NewCopyService(db, caseRepo, suiteRepo, planRepo, testRepo,
		projectRepo, labelRepo, attachmentRepo, hist, blobs, logger)
	statsService := service.NewStatsService(db, planRepo, testRepo, resultRepo, caseRepo,
		statusRepo, projectRepo, labelRepo, logger)
	statusService := service.NewStatusService(statusRepo, logger)
	labelService := service.NewLabelService(db, labelRepo, logger)
	attrService := service.NewAttributeService(attrRepo, logger)
	attachmentService := service.NewAttachmentService(db, attachmentRepo, blobs, logger)
	lifecycleService := service.NewLifecycleService(db, engine, projectRepo, producer, logger)

	// Seed the system status catalog
	if err := statusService.SeedFromFile(context.Background(), statusSeedPath); err != nil {
		slog.Error("failed to seed statuses", "error", err)
		os.Exit(1)
	}

	// Initialize handlers
	projectHandler := handler.NewProjectHandler(projectService, statsService, userRepo, logger)
	suiteHandler := handler.NewSuiteHandler(suiteService, caseService, copyService, logger)
	caseHandler := handler.NewCaseHandler(caseService, testService, copyService, attachmentService, logger)
	planHandler := handler.NewPlanHandler(planService, copyService, statsService, statusService, logger)
	testHandler := handler.NewTestHandler(testService, planService, resultService, logger)
	resultHandler := handler.NewResultHandler(resultService, logger)
	catalogHandler := handler.NewCatalogHandler(statusService, labelService, attrService, logger)
	attachmentHandler := handler.NewAttachmentHandler(attachmentService, logger)
	lifecycleHandler := handler.NewLifecycleHandler(lifecycleService, cfg.Cache.TTL, logger)

	// Set up HTTP router
	router := mux.NewRouter()

	// Add middleware
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)
	router.Use(corsMiddleware(cfg.CORS))

	// Register health and readiness endpoints
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/ready", readyHandler(db, redisClient)).Methods("GET")

	// Register API routes. v2 is the design target; v1 serves the same
	// handlers minus the v2-only endpoints.
	apiV1 := router.PathPrefix("/api/v1").Subrouter()
	apiV2 := router.PathPrefix("/api/v2").Subrouter()
	for _, api := range []*mux.Router{apiV1, apiV2} {
		projectHandler.RegisterRoutes(api)
		suiteHandler.RegisterRoutes(api)
		caseHandler.RegisterRoutes(api)
		planHandler.RegisterRoutes(api)
		testHandler.RegisterRoutes(api)
		resultHandler.RegisterRoutes(api)
		catalogHandler.RegisterRoutes(api)
		attachmentHandler.RegisterRoutes(api)
		lifecycleHandler.RegisterRoutes(api)
	}
	suiteHandler.RegisterV2Routes(apiV2)
	planHandler.RegisterV2Routes(apiV2)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
		IdleTimeout:  cfg.Service.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced to shutdown", "error", err)
	}

	slog.Info("server exited gracefully")
}

// Middleware

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
				)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(cfg config.CORSConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range cfg.AllowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Handle preflight
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Handlers

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func readyHandler(db *sqlx.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable","reason":"database"}`))
			return
		}
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable","reason":"redis"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
