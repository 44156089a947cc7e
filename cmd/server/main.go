// AppForge production server.
//
// Wires the model gateway, knowledge store, asset generator, build
// pipeline and orchestrator behind a gin HTTP surface with live
// websocket progress streaming.
package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"appforge/internal/agents"
	"appforge/internal/ai"
	"appforge/internal/api"
	"appforge/internal/assets"
	"appforge/internal/brain"
	"appforge/internal/cache"
	"appforge/internal/config"
	"appforge/internal/database"
	"appforge/internal/db"
	"appforge/internal/logging"
	"appforge/internal/metrics"
	"appforge/internal/middleware"
	"appforge/internal/orchestrator"
	"appforge/internal/pipeline"
	"appforge/internal/stream"
)

const responseCacheTTL = 10 * time.Minute

func main() {
	cfg := config.Load()
	logging.Init()
	defer logging.Sync()
	log := logging.L().Named("server")

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.New(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	defer conn.Close()

	if err := runMigrations(cfg, conn, log); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	respCache := cache.New(cfg.RedisURL)
	defer respCache.Close()

	gateway := ai.NewGatewayFromKeys(
		cfg.AnthropicAPIKey, cfg.GeminiAPIKey, cfg.OpenAIAPIKey, cfg.GrokAPIKey,
		ai.WithResponseCache(respCache, responseCacheTTL),
		ai.WithMetrics(m),
	)
	if !gateway.HasProviders() {
		log.Warn("no model provider configured, orchestration requests will be rejected")
	}

	embedder := brain.NewChainEmbedder(cfg.OpenAIAPIKey, cfg.GeminiAPIKey)
	store := brain.NewStore(conn.DB, embedder, m)

	generator, err := buildAssetGenerator(cfg, log)
	if err != nil {
		log.Fatal("asset storage init failed", zap.Error(err))
	}

	reviewer := agents.NewReviewer(gateway)
	builderOpts := []pipeline.Option{
		pipeline.WithMaxRetries(cfg.BuildMaxRetries),
		pipeline.WithMetrics(m),
	}
	if cfg.SpeedProfile {
		builderOpts = append(builderOpts, pipeline.WithSpeedProfile())
	}
	builder := pipeline.New(gateway, reviewer, builderOpts...)

	orch := orchestrator.New(gateway,
		orchestrator.WithBrain(store),
		orchestrator.WithImageGenerator(generator),
		orchestrator.WithMetrics(m),
		orchestrator.WithPipeline(builder),
	)

	hub := stream.NewHub()
	srv := api.NewServer(gateway, orch, store, hub)

	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.NewRateLimiter(rate.Limit(10), 30).Handler())

	router.GET("/health", srv.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/:projectId", hub.Handler)
	srv.Register(router)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	startMonitor(monitorCtx, cfg, builder, log)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("appforge server starting", zap.String("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopMonitor()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

// runMigrations applies SQL migrations against postgres. The sqlite
// fallback has no migration driver and relies on AutoMigrate instead.
func runMigrations(cfg *config.Config, d *db.Database, log *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		log.Info("sqlite database, using AutoMigrate")
		return d.Migrate()
	}

	runner, err := database.NewRunner(cfg.DatabaseURL, cfg.MigrationsPath)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up()
}

func buildAssetGenerator(cfg *config.Config, log *zap.Logger) (*assets.Generator, error) {
	var storage assets.StorageProvider
	if cfg.S3Bucket != "" {
		s3, err := assets.NewS3Storage(context.Background(), cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		storage = s3
		log.Info("asset storage: s3", zap.String("bucket", cfg.S3Bucket))
	} else {
		local, err := assets.NewLocalStorage(cfg.AssetDir)
		if err != nil {
			return nil, err
		}
		storage = local
		log.Info("asset storage: local", zap.String("dir", cfg.AssetDir))
	}

	var client assets.ImageClient
	if cfg.GeminiAPIKey != "" {
		client = assets.NewGeminiImageClient(cfg.GeminiAPIKey)
	}
	return assets.NewGenerator(client, storage), nil
}

// startMonitor watches MonitorDir and re-runs the build loop over its
// contents on every tick. A no-op when the directory is unset.
func startMonitor(ctx context.Context, cfg *config.Config, builder *pipeline.Pipeline, log *zap.Logger) {
	if cfg.MonitorDir == "" {
		return
	}

	snapshot := pipeline.SnapshotFunc(func(ctx context.Context) (map[string]string, error) {
		return snapshotDir(cfg.MonitorDir)
	})
	monitor := pipeline.NewMonitor(builder, snapshot, cfg.MonitorInterval)
	go monitor.Start(ctx)
	log.Info("build monitor started",
		zap.String("dir", cfg.MonitorDir),
		zap.Duration("interval", cfg.MonitorInterval))
}

func snapshotDir(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
