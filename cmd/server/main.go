package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"reservation-service/config"
	"reservation-service/internal/api"
	"reservation-service/internal/broker"
	"reservation-service/internal/redisclient"
	"reservation-service/internal/service"
	"reservation-service/internal/store"
	"reservation-service/internal/util"
	"reservation-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting reservation service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer("reservation-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	checks := []api.ReadinessCheck{{Name: "database", Check: db.Ping}}

	// The mirror only serves reads, so the service runs without it.
	var mirror service.StockMirror
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.MirrorTTL)
	if err != nil {
		logger.Warn("Redis unavailable, availability reads go to the database", zap.Error(err))
	} else {
		defer redisClient.Close()
		mirror = redisClient
		checks = append(checks, api.ReadinessCheck{Name: "redis", Check: redisClient.Ping})
		logger.Info("Redis connected")
	}

	eventsProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer eventsProducer.Close()
	alertsProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
	defer alertsProducer.Close()
	logger.Info("Kafka producers initialized",
		zap.String("events_topic", cfg.Kafka.TopicOrder),
		zap.String("alerts_topic", cfg.Kafka.TopicAlerts))

	publisher := broker.NewEventPublisher(eventsProducer, alertsProducer)

	policy := service.RetryPolicy{
		MaxAttempts: cfg.Reservation.CompensationMaxAttempts,
		Backoff:     cfg.Reservation.CompensationBackoff,
	}
	reservations := service.NewReservationService(db, db, publisher, mirror, policy, cfg.Reservation.OrderPageLimit)
	listings := service.NewListingService(db, db, mirror, publisher, cfg.Reservation.OrderPageLimit)
	reconciler := service.NewReconciler(db, db, publisher, mirror)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if mirror != nil {
		availabilityConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.AvailabilityGroup)
		availabilityWorker := worker.NewAvailabilityWorker(availabilityConsumer,
			service.NewStockSync(db, mirror), cfg.Reservation.MirrorSyncInterval)
		defer availabilityWorker.Stop()
		g.Go(func() error { return ignoreCancel(availabilityWorker.Start(gctx)) })
	}

	// An alert is the only record of understated stock, so it is never dropped.
	reconcileConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, cfg.Kafka.ReconcileGroup,
		broker.WithRetryUntilHandled(cfg.Kafka.AlertRetryMaxBackoff))
	reconciliationWorker := worker.NewReconciliationWorker(reconcileConsumer, reconciler)
	defer reconciliationWorker.Stop()
	g.Go(func() error { return ignoreCancel(reconciliationWorker.Start(gctx)) })

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(reservations, listings, reconciler, checks...)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
