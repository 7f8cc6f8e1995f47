package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workorder-service/internal/infrastructure/config"
	"workorder-service/internal/infrastructure/persistence"
	"workorder-service/internal/interface/api"
	engineRepo "workorder-service/internal/interface/repository"
	"workorder-service/internal/scheduler"
	"workorder-service/internal/usecase"
	"workorder-service/pkg/logger"
	"workorder-service/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	// Create logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("Starting Work Order Service", "version", cfg.AppVersion)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up MongoDB connection
	log.Info("Connecting to MongoDB")
	mongoClient, db, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	// Set up PostgreSQL connection for the crew roster
	gormDB, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", "error", err)
	}

	// Set up repositories
	workOrderRepo := engineRepo.NewMongoWorkOrderRepository(db)
	crewRepo := engineRepo.NewGormCrewRepository(gormDB)

	// Set up metrics
	mtr := metrics.NewMetrics("workorder")

	// Set up the lifecycle engine
	engine := usecase.NewWorkOrderLifecycle(usecase.Config{
		SiteCapacities:    cfg.SiteCapacities,
		GraceWindow:       cfg.GraceWindow,
		AdvisoryThreshold: cfg.AdvisoryThreshold,
	}, workOrderRepo, crewRepo, log, mtr)

	log.Info("Hydrating work orders from storage")
	if err := engine.Hydrate(ctx); err != nil {
		log.Fatal("Failed to hydrate work orders", "error", err)
	}

	// Start the soft-delete reaper
	reaper := scheduler.NewScheduler(cfg.ReaperCron, engine.SoftDelete(), log)
	reaper.Start()
	defer reaper.Stop()

	// Set up HTTP API
	zlog, _ := zap.NewProduction()
	handler := api.NewWorkOrderHandler(engine, log)
	router := api.NewRouter(handler, zlog)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal", "signal", sig)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel()

	// Disconnect from MongoDB
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		log.Error("MongoDB disconnect error", "error", err)
	}

	log.Info("Work Order Service stopped")
}
