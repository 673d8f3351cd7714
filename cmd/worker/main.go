// Package main runs the background job worker (async reel generation, archive to S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pinecraft/pinereel/config"
	"github.com/pinecraft/pinereel/internal/pipeline"
	"github.com/pinecraft/pinereel/internal/realtime"
	"github.com/pinecraft/pinereel/internal/reels"
	"github.com/pinecraft/pinereel/internal/worker"
	"github.com/pinecraft/pinereel/pkg/database"
	"github.com/pinecraft/pinereel/pkg/queue"
	"github.com/pinecraft/pinereel/pkg/redis"
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

	jobQueue := queue.NewQueue(rdb.Client, logger)
	// Status changes are published so servers can push them to WebSocket clients.
	statuses := realtime.NewPublishingStatuses(queue.NewStatusStore(rdb.Client, cfg.Worker.JobStatusTTL()), realtime.NewJobEvents(rdb.Client, logger), logger)
	reelRepo := reels.NewRepository(pool)

	var archive reels.ArchiveEnqueuer
	var uploader worker.Uploader
	if s3Cfg, ok := cfg.S3(); ok {
		s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		archive = jobQueue
		uploader = s3Client
	} else {
		logger.Warn("AWS_S3_REELS_BUCKET not set; archive jobs will fail")
	}

	reelService := reels.NewService(pipeline.NewFromConfig(cfg.Pipeline(), logger), reelRepo, archive, logger)

	workerPool, err := ants.NewPool(cfg.Worker.Concurrency, ants.WithPanicHandler(func(p interface{}) {
		logger.Error("worker panic", zap.Any("panic", p))
	}))
	if err != nil {
		logger.Fatal("worker pool", zap.Error(err))
	}
	defer workerPool.Release()

	processor := worker.NewProcessor(reelService, reelRepo, uploader, jobQueue, statuses, workerPool, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started", zap.Int("concurrency", cfg.Worker.Concurrency))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
