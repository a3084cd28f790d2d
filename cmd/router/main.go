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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/ndthang/smart-router/config"
	"github.com/ndthang/smart-router/internal/accounting"
	"github.com/ndthang/smart-router/internal/auth"
	"github.com/ndthang/smart-router/internal/backend"
	"github.com/ndthang/smart-router/internal/backend/openrouter"
	"github.com/ndthang/smart-router/internal/backend/together"
	"github.com/ndthang/smart-router/internal/httpapi"
	"github.com/ndthang/smart-router/internal/routing"
	"github.com/ndthang/smart-router/internal/seeder"
	"github.com/ndthang/smart-router/internal/telemetry"
	"github.com/ndthang/smart-router/pkg/ratelimit"
)

func main() {
	// 1. Load config; a broken routing table refuses to start
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("smart-router", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb)

	// 6. Init accounting
	store := accounting.NewPostgresStore(pool)

	// 7. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitTPM)

	// 8. Register backends: every routable model gets an invoker up front
	registry := backend.NewRegistry()
	registerBackends(registry, cfg)

	// 9. Init routing
	table := routing.NewTable(cfg)
	orchestrator := routing.NewOrchestrator(table, registry, store)

	// 10. Init handler
	tracer := otel.GetTracerProvider().Tracer("smart-router")
	handler := httpapi.NewHandler(orchestrator, store, limiter, tracer)

	// 11. Seed test API key if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAPIKey(ctx, authStore)
	}

	// 12. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"smart-router"}`))
	})
	r.Get("/health", httpapi.HealthDetail(cfg))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/generate", handler.HandleGenerate)
		r.Get("/v1/stats", handler.HandleStats)
	})

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Smart router starting on port %s", cfg.Port)
		for _, tier := range config.Tiers {
			log.Printf("  %s -> %s", tier, cfg.Backends[tier].Model)
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// registerBackends binds each configured model to its invoker family.
// Together-hosted models are recognized by their published prefixes; every
// other model goes through the OpenRouter gateway.
func registerBackends(registry *backend.Registry, cfg *config.Config) {
	gateway := openrouter.New(cfg.OpenRouterAPIKey)
	togetherClient := together.New(cfg.TogetherAPIKey)

	for _, tier := range config.Tiers {
		model := cfg.Backends[tier].Model
		if together.Serves(model) {
			registry.Register(model, togetherClient)
		} else {
			registry.Register(model, gateway)
		}
	}
}
