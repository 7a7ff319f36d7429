package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pointsystem/internal/config"
	"pointsystem/internal/handler"
	"pointsystem/internal/infrastructure/mq"
	"pointsystem/internal/job"
	"pointsystem/internal/logger"
	"pointsystem/internal/metrics"
	"pointsystem/internal/service"
	"pointsystem/pkg/idgen"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := "config/config.yaml"
	if p := os.Getenv("POINT_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids, err := idgen.NewSnowflake(cfg.Ledger.WorkerID)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg, ids)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Warn("close storage failed", zap.Error(err))
		}
	}()
	log.Info("storage ready", zap.String("driver", cfg.Storage.Driver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTxManager(store.tx),
		service.WithNumberGenerator(ids),
		service.WithAutoCreate(cfg.Ledger.AutoCreateAccounts),
		service.WithMaxBalance(cfg.Ledger.MaxBalance),
	}

	if cfg.Kafka.Enabled {
		producer, err := mq.NewKafkaProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer func() {
			if err := producer.Close(); err != nil {
				log.Warn("close kafka producer failed", zap.Error(err))
			}
		}()

		relay := job.NewHistoryRelay(producer, cfg.Kafka.Topic, cfg.Relay, ids, log, m)
		go relay.Start(ctx)
		// runs after the HTTP server has drained and before the producer closes
		defer relay.Stop()
		opts = append(opts, service.WithEventSink(relay))
		log.Info("history relay started", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	pointService := service.NewPointService(store.accounts, store.history, opts...)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.SetupRouter(pointService, m, reg, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown failed", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
