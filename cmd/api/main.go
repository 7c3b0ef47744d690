package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/mediscan/mediscan-api/internal/application"
	appanalysis "github.com/mediscan/mediscan-api/internal/application/analysis"
	"github.com/mediscan/mediscan-api/internal/application/trial"
	"github.com/mediscan/mediscan-api/internal/config"
	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
	domfaults "github.com/mediscan/mediscan-api/internal/domain/faults"
	mysqlp "github.com/mediscan/mediscan-api/internal/infra/db/mysql"
	postgresp "github.com/mediscan/mediscan-api/internal/infra/db/postgres"
	"github.com/mediscan/mediscan-api/internal/infra/ai/gemini"
	"github.com/mediscan/mediscan-api/internal/infra/ai/openai"
	"github.com/mediscan/mediscan-api/internal/infra/httpserver"
	minioStore "github.com/mediscan/mediscan-api/internal/infra/storage"
	trialstore "github.com/mediscan/mediscan-api/internal/infra/trial"
	"github.com/mediscan/mediscan-api/internal/middleware"
)

func main() {
	// .env is optional, real deployments use environment variables
	_ = godotenv.Load()

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect database (mysql by default, postgres optional)
	var db *sql.DB
	var repo domain.Repository
	var faults domfaults.Repository
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresp.NewAnalysisRepository(db)
		faults = postgresp.NewFaultRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqlp.NewAnalysisRepository(db)
		faults = mysqlp.NewFaultRepository(db)
	}
	defer db.Close()

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// trial counters live in redis; fall back to process memory when it is
	// unreachable so the API still serves
	var counters trial.Store = trial.NewMemoryStore()
	redisClient := trialstore.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if redisClient != nil {
		counters = trialstore.NewRedisStore(redisClient)
	} else if cfg.Redis.Addr != "" {
		log.Printf("redis unreachable at %s, trial counters are in-memory", cfg.Redis.Addr)
	}
	gate := trial.New(counters, cfg.Trial.Limit)

	// init vision provider
	var vision domain.Vision
	switch cfg.AI.Provider {
	case "openai":
		vision = openai.NewClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Endpoint)
	default:
		vision = gemini.NewClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Endpoint)
	}

	// init service
	svc := &appanalysis.Service{
		Vision: vision,
		Repo:   repo,
		Images: store,
		Faults: faults,
		Gate:   gate,
		Clock:  application.SystemClock{},
		Retry: appanalysis.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Step:        time.Duration(cfg.Retry.StepMS) * time.Millisecond,
		},
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.Auth([]byte(cfg.Auth.JWTSecret)))
	mux.Use(middleware.RateLimitMiddleware(30, 1))

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}
	if redisClient != nil {
		checkers["redis"] = &middleware.RedisHealthChecker{Client: redisClient}
	}
	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Mount("/", httpserver.NewRouter(svc, gate, cfg.Development))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
