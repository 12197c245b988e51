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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/api"
	"alcyxob/gym-notifier/internal/config"
	"alcyxob/gym-notifier/internal/logger"
	"alcyxob/gym-notifier/internal/monitoring"
	"alcyxob/gym-notifier/internal/repository"
	"alcyxob/gym-notifier/internal/repository/memory"
	"alcyxob/gym-notifier/internal/repository/mongo"
	"alcyxob/gym-notifier/internal/scheduler"
	"alcyxob/gym-notifier/internal/service"
	"alcyxob/gym-notifier/internal/storage"
	"alcyxob/gym-notifier/internal/tracing"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: could not read .env: %v", err)
	}

	// --- Configuration ---
	loader := config.NewLoader(".")
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	// --- Logging ---
	appLog, err := logger.New(&cfg.Log, logger.DefaultServiceName)
	if err != nil {
		log.Fatalf("FATAL: Could not build logger: %v", err)
	}
	defer func() { _ = appLog.Sync() }()
	zap.ReplaceGlobals(appLog)
	appLog.Info("starting gym notifier", zap.String("store", cfg.Database.Driver))

	// --- Observability ---
	monitoring.Init()
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(logger.DefaultServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			appLog.Fatal("could not init tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				appLog.Error("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	// --- Document Store ---
	var store repository.Store
	switch cfg.Database.Driver {
	case "memory":
		appLog.Warn("using in-memory store; data is lost on restart")
		store = memory.New()
	default:
		dbClient, appDB, err := mongo.ConnectDB(context.Background(), cfg.Database, appLog)
		if err != nil {
			appLog.Fatal("could not connect to MongoDB", zap.Error(err))
		}
		defer func() {
			appLog.Info("disconnecting MongoDB")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				appLog.Error("failed to disconnect MongoDB", zap.Error(err))
			}
		}()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			mongo.EnsureIndexes(ctx, appDB, appLog)
		}()
		store = mongo.NewStore(appDB)
	}

	// --- Report Archive ---
	var archive storage.FileStorage
	if cfg.S3.BucketName != "" {
		archive, err = storage.NewS3Storage(context.Background(), cfg.S3, appLog)
		if err != nil {
			appLog.Fatal("failed to initialize S3 storage", zap.Error(err))
		}
	} else {
		appLog.Warn("s3.bucket_name is empty; report export is disabled")
	}

	// --- Services ---
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		appLog.Fatal("invalid schedule timezone", zap.String("timezone", cfg.Schedule.Timezone), zap.Error(err))
	}
	notifications := service.NewNotificationService(store, appLog)
	weekly := service.NewWeeklySummaryService(store, notifications, loc, appLog)
	weekly.SetFanout(cfg.Schedule.Fanout)
	reports := service.NewReportService(store, archive, cfg.S3.PresignExpiry, appLog)
	reports.SetDefaultLookback(cfg.Report.DefaultLookbackDays)
	svc := api.Services{
		Notifications: notifications,
		Weekly:        weekly,
		Cleanup:       service.NewCleanupService(store, appLog),
		Reports:       reports,
		Sessions:      service.NewSessionService(store, notifications, weekly, appLog),
	}

	loader.Watch(func(next config.Config, err error) {
		if err != nil {
			appLog.Error("config reload failed", zap.Error(err))
			return
		}
		weekly.SetFanout(next.Schedule.Fanout)
		reports.SetDefaultLookback(next.Report.DefaultLookbackDays)
		appLog.Info("config reloaded",
			zap.Int("schedule.fanout", next.Schedule.Fanout),
			zap.Int("report.default_lookback_days", next.Report.DefaultLookbackDays))
	})

	// --- Scheduler ---
	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched, err = scheduler.New(cfg.Schedule.WeeklyCron, cfg.Schedule.Timezone, weekly, appLog)
		if err != nil {
			appLog.Fatal("could not create scheduler", zap.Error(err))
		}
		sched.Start()
	}

	// --- HTTP Server ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, cfg.JWT.Secret, cfg.Triggers.Token, svc, appLog)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // weekly sweep trigger runs inline
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		appLog.Info("server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("ListenAndServe error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if sched != nil {
		sched.Stop(ctxShutdown)
	}
	if err := server.Shutdown(ctxShutdown); err != nil {
		appLog.Error("server forced to shutdown", zap.Error(err))
	}
	appLog.Info("server exiting")
}
