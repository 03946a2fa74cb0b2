package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sweeply/sweeply/internal/config"
	"github.com/sweeply/sweeply/internal/db"
	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/geo"
	"github.com/sweeply/sweeply/internal/logger"
	"github.com/sweeply/sweeply/internal/matching"
	"github.com/sweeply/sweeply/internal/notify"
	"github.com/sweeply/sweeply/internal/services"
	"github.com/sweeply/sweeply/pkg/api/middleware"
	"github.com/sweeply/sweeply/pkg/api/v1/handlers"
	v1 "github.com/sweeply/sweeply/pkg/api/v1/routes"
)

func main() {
	logger.Initialize()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	database, err := db.New(db.Options{
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		User:       cfg.DBUser,
		Password:   cfg.DBPassword,
		DBName:     cfg.DBName,
		SSLEnabled: cfg.DBSSL,
		LogLevel:   gormlogger.Warn,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	index := buildGeoIndex(cfg, database)
	notifier := buildNotifier(cfg)

	weights, err := matching.NewWeights(cfg.WeightRating, cfg.WeightDistance, cfg.WeightAcceptance, cfg.WeightPunctuality)
	if err != nil {
		logger.Fatalf("Invalid scoring weights: %v", err)
	}

	dispatcher := matching.NewDispatcher(database, index, notifier, weights, matching.DispatchConfig{
		TopK:          cfg.TopK,
		PoolLimit:     cfg.PoolLimit,
		OfferTTL:      cfg.OfferTTL,
		RedispatchTTL: cfg.RedispatchTTL,
	})
	coordinator := matching.NewCoordinator(database)
	monitor := matching.NewMonitor(database, dispatcher, notifier, matching.MonitorConfig{
		SweepInterval:      cfg.SweepInterval,
		ArrivalTolerance:   cfg.ArrivalTolerance,
		RedistributeGrace:  cfg.RedistributeGrace,
		WarnWindow:         cfg.WarnWindow,
		WarnOnce:           cfg.WarnOnce,
		PunctualityPenalty: cfg.PunctualityPenalty,
	})

	jobService := services.NewJobService(database, dispatcher, cfg.ArrivalTolerance)
	providerService := services.NewProviderService(database, index)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})
	app.Use(middleware.Logger())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	v1.Register(app, v1.Handlers{
		Jobs:        handlers.NewJobHandler(jobService),
		Providers:   handlers.NewProviderHandler(providerService),
		Assignments: handlers.NewAssignmentHandler(coordinator),
	})

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var workerWg sync.WaitGroup
	workerWg.Add(1)
	go services.LaunchMonitor(gctx, &workerWg, monitor)

	g.Go(func() error {
		logger.Infof("Listening on %s", cfg.HTTPAddr)
		return app.Listen(cfg.HTTPAddr)
	})
	g.Go(func() error {
		logger.Infof("Serving metrics on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		workerWg.Wait()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return app.ShutdownWithTimeout(cfg.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Info("Shutdown complete")
}

// buildGeoIndex uses the redis GEO index when configured and falls back to
// the in-process index, warmed from the provider table, otherwise.
func buildGeoIndex(cfg config.Config, database *gorm.DB) geo.Index {
	if cfg.RedisAddr != "" {
		logger.Infof("Using redis geo index at %s", cfg.RedisAddr)
		return geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	}

	logger.Warn("REDIS_ADDR not set, using the in-process geo index")
	index := geo.NewMemoryIndex()
	var providers []models.Provider
	if err := database.Where("active = ?", true).Find(&providers).Error; err != nil {
		logger.Fatalf("Failed to warm geo index: %v", err)
	}
	for _, p := range providers {
		_ = index.Upsert(context.Background(), p.ID, p.Lat, p.Lon)
	}
	logger.Infof("Warmed geo index with %d provider(s)", len(providers))
	return index
}

// buildNotifier publishes to kafka when brokers are configured; otherwise
// notifications land in the log.
func buildNotifier(cfg config.Config) notify.Notifier {
	if len(cfg.KafkaBrokers) > 0 {
		logger.Infof("Publishing notifications to kafka topic %q", cfg.KafkaTopic)
		return notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	logger.Warn("KAFKA_BROKERS not set, notifications will only be logged")
	return notify.NewLogNotifier()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
