package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/infogenhq/infogen-engine/internal/client"
	"github.com/infogenhq/infogen-engine/internal/config"
	"github.com/infogenhq/infogen-engine/internal/handler"
	"github.com/infogenhq/infogen-engine/internal/infra/postgresql"
	"github.com/infogenhq/infogen-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/infogenhq/infogen-engine/internal/infra/redis"
	"github.com/infogenhq/infogen-engine/internal/notify"
	"github.com/infogenhq/infogen-engine/internal/observability"
	"github.com/infogenhq/infogen-engine/internal/pipeline"
	"github.com/infogenhq/infogen-engine/internal/ratelimit"
	"github.com/infogenhq/infogen-engine/internal/repository"
	"github.com/infogenhq/infogen-engine/internal/service"
	"github.com/infogenhq/infogen-engine/internal/store"
	"github.com/infogenhq/infogen-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	var (
		sqlDB   *sql.DB
		history repository.HistoryRepository
	)
	if cfg.DatabaseDSN != "" {
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.Pool{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime(),
		})
		if err != nil {
			logger.Fatal("postgres initialization failed", zap.Error(err))
		}
		if err := migrations.Migrate(db); err != nil {
			logger.Fatal("database migrations failed", zap.Error(err))
		}
		sqlDB, err = db.DB()
		if err != nil {
			logger.Fatal("postgres underlying db init failed", zap.Error(err))
		}
		defer sqlDB.Close()
		history = repository.NewGormHistoryRepo(db)
	}

	var (
		rdb       *goredis.Client
		admission *infraredis.AdmissionLimiter
	)
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()

		admission, err = infraredis.NewAdmissionLimiter(rdb, cfg.HTTPRateLimitPerSec)
		if err != nil {
			logger.Fatal("admission limiter init failed", zap.Error(err))
		}
	}

	var notifier notify.Notifier
	switch {
	case cfg.RabbitMQURL != "":
		notifier, err = notify.NewAMQPNotifier(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("rabbitmq initialization failed", zap.Error(err))
		}
	case cfg.WebhookURL != "":
		notifier, err = notify.NewWebhookNotifier(cfg.WebhookURL)
		if err != nil {
			logger.Fatal("webhook notifier init failed", zap.Error(err))
		}
	}

	pipe, err := buildPipeline(cfg)
	if err != nil {
		logger.Fatal("pipeline init failed", zap.Error(err))
	}

	jobs := store.NewJobStore()
	batches := store.NewBatchStore()

	expectedDuration := cfg.AnalysisDelay() + cfg.GenerationDelay()
	jobSvc, err := service.NewJobService(jobs, pipe, expectedDuration, logger)
	if err != nil {
		logger.Fatal("job service init failed", zap.Error(err))
	}
	jobSvc.SetMetrics(metrics)
	if history != nil {
		jobSvc.SetHistory(history)
	}
	if notifier != nil {
		jobSvc.SetNotifier(notifier)
	}

	batchSvc, err := service.NewBatchService(batches, pipe, logger)
	if err != nil {
		logger.Fatal("batch service init failed", zap.Error(err))
	}
	batchSvc.SetMetrics(metrics)
	if notifier != nil {
		batchSvc.SetNotifier(notifier)
	}

	opts := client.DefaultOptions(cfg.APIKey)
	opts.WebhookURL = cfg.WebhookURL
	opts.RateLimit = ratelimit.Config{
		MaxRequests: cfg.RateLimitMaxRequests,
		Window:      cfg.RateLimitWindow(),
		Cooldown:    cfg.RateLimitCooldown(),
	}
	api, err := client.New(opts, jobSvc, batchSvc, logger)
	if err != nil {
		logger.Fatal("client init failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	if admission != nil {
		app.Use(transport.Admission(admission, logger))
	}

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterJobRoutes(app, api); err != nil {
		logger.Fatal("job routes init failed", zap.Error(err))
	}
	if err := handler.RegisterBatchRoutes(app, api); err != nil {
		logger.Fatal("batch routes init failed", zap.Error(err))
	}
	if err := handler.RegisterRateLimitRoutes(app, api); err != nil {
		logger.Fatal("rate limit routes init failed", zap.Error(err))
	}
	if history != nil {
		if err := handler.RegisterHistoryRoutes(app, history); err != nil {
			logger.Fatal("history routes init failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	if history != nil && cfg.HistoryRetention() > 0 {
		sweeper, err := service.NewHistorySweeper(history, cfg.HistoryRetention(), 0, logger)
		if err != nil {
			logger.Fatal("history sweeper init failed", zap.Error(err))
		}
		g.Go(func() error {
			return sweeper.Start(groupCtx)
		})
	}
	g.Go(func() error {
		logger.Info("infogen-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
}

func buildPipeline(cfg *config.Config) (pipeline.Pipeline, error) {
	if cfg.PipelineBaseURL != "" {
		return pipeline.NewHTTPPipeline(cfg.PipelineBaseURL, cfg.APIKey, cfg.PipelineTimeout(), nil)
	}

	return pipeline.NewMock(pipeline.MockConfig{
		AnalysisDelay:       cfg.AnalysisDelay(),
		GenerationDelay:     cfg.GenerationDelay(),
		AnalysisErrorRate:   float64(cfg.AnalysisErrorRatePct) / 100,
		GenerationErrorRate: float64(cfg.GenerationErrorRatePct) / 100,
	}), nil
}
