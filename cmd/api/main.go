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

	"github.com/buildsite/safesight/internal/application/orchestrator"
	"github.com/buildsite/safesight/internal/config"
	"github.com/buildsite/safesight/internal/domain/analysis"
	openaiStrategy "github.com/buildsite/safesight/internal/infra/ai/openai"
	mysqlp "github.com/buildsite/safesight/internal/infra/db/mysql"
	postgresp "github.com/buildsite/safesight/internal/infra/db/postgres"
	devinfra "github.com/buildsite/safesight/internal/infra/device"
	"github.com/buildsite/safesight/internal/infra/engine"
	"github.com/buildsite/safesight/internal/infra/fallback"
	"github.com/buildsite/safesight/internal/infra/httpserver"
	minioStore "github.com/buildsite/safesight/internal/infra/storage"
	"github.com/buildsite/safesight/internal/middleware"
)

func main() {
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

	// connect database (driver selected in config)
	var db *sql.DB
	var repo analysis.Repository
	var failures analysis.FailureRepository
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresp.NewAnalysisRepository(db)
		failures = postgresp.NewFailureRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqlp.NewAnalysisRepository(db)
		failures = mysqlp.NewFailureRepository(db)
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

	// device probe + capability assessor
	probe := devinfra.NewHostProbe(devinfra.ProbeConfig{
		HasGPU:           cfg.Engine.HasGPU,
		HasNPU:           cfg.Engine.HasNPU,
		Product:          cfg.Engine.Product,
		SmallestScreenDP: cfg.Engine.SmallestScreenDP,
		NewestMajor:      cfg.Engine.NewestMajor,
		RecentMajor:      cfg.Engine.RecentMajor,
		ThermalZonePath:  cfg.Engine.ThermalZonePath,
	})
	assessor := devinfra.NewAssessor(probe)

	// analysis strategies, highest priority first in the cascade
	runtime := engine.NewHTTPRuntime(cfg.Engine.Endpoint)
	onDevice := engine.NewStrategy(runtime, probe, assessor, 100)
	cloud := openaiStrategy.NewStrategy(cfg.Cloud.APIKey, cfg.Cloud.Model, 50)
	checklist := fallback.NewStrategy(10)

	coord := orchestrator.NewCoordinator(
		orchestrator.Config{
			CacheTTL:         cfg.CacheTTL(),
			CacheMaxEntries:  cfg.Orchestrator.CacheMaxEntries,
			TargetFPS:        cfg.Orchestrator.TargetFPS,
			TimeoutHigh:      time.Duration(cfg.Orchestrator.TimeoutHighMS) * time.Millisecond,
			TimeoutMedium:    time.Duration(cfg.Orchestrator.TimeoutMediumMS) * time.Millisecond,
			TimeoutLow:       time.Duration(cfg.Orchestrator.TimeoutLowMS) * time.Millisecond,
			TimeoutCloud:     time.Duration(cfg.Orchestrator.TimeoutCloudMS) * time.Millisecond,
			SuccessRateFloor: cfg.Orchestrator.SuccessRateFloor,
			MaxImageBytes:    cfg.Orchestrator.MaxImageMB << 20,
		},
		assessor,
		[]orchestrator.Candidate{
			{Strategy: onDevice, Type: analysis.TypeOnDevice},
			{Strategy: cloud, Type: analysis.TypeCloud},
			{Strategy: checklist, Type: analysis.TypeFallback, Degraded: true},
		},
		orchestrator.Deps{
			Repo:      repo,
			Failures:  failures,
			Artifacts: store,
		},
	)

	// deep health checkers
	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
		"engine": middleware.CheckerFunc(func(ctx context.Context) error {
			return runtime.Ping(ctx)
		}),
	}

	// init router + middleware chain
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	maxImageMB := cfg.Orchestrator.MaxImageMB
	if maxImageMB <= 0 {
		maxImageMB = 10
	}
	mux.Use(middleware.MaxBodyBytes(int64(maxImageMB+1) << 20))
	if len(cfg.Auth.Keys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.Keys))
		mux.Use(middleware.RequireValidSite)
	}
	if cfg.RateLimit.Capacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))
	}
	mux.Mount("/", httpserver.NewRouter(coord, repo, httpserver.Options{HealthCheckers: checkers}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
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
