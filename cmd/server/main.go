// Package main runs the reel generation HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pinecraft/pinereel/config"
	"github.com/pinecraft/pinereel/internal/auth"
	"github.com/pinecraft/pinereel/internal/middleware"
	"github.com/pinecraft/pinereel/internal/pipeline"
	"github.com/pinecraft/pinereel/internal/realtime"
	"github.com/pinecraft/pinereel/internal/reels"
	"github.com/pinecraft/pinereel/internal/worker"
	"github.com/pinecraft/pinereel/pkg/database"
	"github.com/pinecraft/pinereel/pkg/queue"
	"github.com/pinecraft/pinereel/pkg/redis"
	"github.com/pinecraft/pinereel/pkg/response"
	"github.com/pinecraft/pinereel/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if s3Cfg, ok := cfg.S3(); ok {
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	if cfg.AI.UseMock {
		logger.Info("using mock script generator")
	}
	gen := pipeline.NewFromConfig(cfg.Pipeline(), logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	jobEvents := realtime.NewJobEvents(rdb.Client, logger)
	statuses := realtime.NewPublishingStatuses(queue.NewStatusStore(rdb.Client, cfg.Worker.JobStatusTTL()), jobEvents, logger)
	reelRepo := reels.NewRepository(pool)

	// Archive jobs are only scheduled when there is somewhere to archive to.
	var archive reels.ArchiveEnqueuer
	var presigner reels.Presigner
	var uploader worker.Uploader
	if s3Client != nil {
		archive = jobQueue
		presigner = s3Client
		uploader = s3Client
	}
	reelService := reels.NewService(gen, reelRepo, archive, logger)
	reelHandler := reels.NewHandler(reelService, jobQueue, statuses, presigner, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("")
	if cfg.Auth.JWTSecret != "" {
		api.Use(middleware.JWT(auth.NewVerifier(cfg.Auth.JWTSecret)))
		logger.Info("bearer token authentication enabled")
	}
	{
		api.POST("/generate-reel", reelHandler.Generate)
		api.POST("/generate-reel/async", reelHandler.GenerateAsync)
		api.GET("/jobs/:id", reelHandler.JobStatus)
		api.GET("/jobs/:id/ws", realtime.ServeJobStatus(statuses, jobEvents, logger))
		api.GET("/reels", reelHandler.List)
		api.GET("/reels/:id", reelHandler.Get)
		api.GET("/reels/:id/download-url", reelHandler.DownloadURL)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (async generation and S3 archive)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if cfg.Worker.InProcess {
		workerPool, err := ants.NewPool(cfg.Worker.Concurrency, ants.WithPanicHandler(func(p interface{}) {
			logger.Error("worker panic", zap.Any("panic", p))
		}))
		if err != nil {
			logger.Fatal("worker pool", zap.Error(err))
		}
		defer workerPool.Release()

		processor := worker.NewProcessor(reelService, reelRepo, uploader, jobQueue, statuses, workerPool, logger)
		go func() {
			processor.Run(workerCtx)
			close(workerDone)
		}()
		logger.Info("reel worker started", zap.Int("concurrency", cfg.Worker.Concurrency))
	} else {
		close(workerDone)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	workerCancel()
	<-workerDone
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
