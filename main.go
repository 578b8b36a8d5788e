package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aj9599/raas-platform/config"
	"github.com/aj9599/raas-platform/database"
	"github.com/aj9599/raas-platform/logging"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting RaaS Platform...")

	db, err := database.InitDB(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(db, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	app, err := newApplication(cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}

	go app.scheduler.Start()

	var ingestor *services.EnergyIngestor
	if cfg.MQTTBroker != "" {
		ingestor = services.NewEnergyIngestor(services.IngestorConfig{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, app.energy, logger)
		if err := ingestor.Start(); err != nil {
			// the platform works without the feed; records can still be entered by hand
			logger.Error("[MQTT] Energy feed unavailable", zap.Error(err))
		}
	} else {
		logger.Info("[MQTT] No broker configured, energy feed disabled")
	}

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      app.routes(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  180 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server starting", zap.String("address", cfg.ServerAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	app.scheduler.Stop()
	if ingestor != nil {
		ingestor.Stop()
	}
	app.hub.Close()
	logger.Info("Stopped")
}
