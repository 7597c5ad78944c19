package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/dashboard"
	"github.com/mmdatafocus/unified_backend/middlewares"
	"github.com/mmdatafocus/unified_backend/models"
	"github.com/mmdatafocus/unified_backend/platformsync"
	"github.com/mmdatafocus/unified_backend/unified"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func platformConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("PLATFORM_CONFIG_PATH")); p != "" {
		return p
	}
	return "."
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	settings, err := config.LoadPlatformSettings(platformConfigPath())
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "platform settings"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	aggregator := unified.NewAggregator(unified.NewAccessor(unified.NewClient(settings)), settings)

	// Listen before dependencies are up; the readiness gate answers 503 until they are.
	var ready atomic.Bool
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.CorrelationID())
	r.Use(middlewares.Readiness(&ready))
	r.Use(middlewares.CORS())
	r.Use(middlewares.RequestLogger(logger))
	r.Use(middlewares.DemoScope())

	dashboard.New(aggregator).RegisterRoutes(r)
	platformsync.RegisterRoutes(r, platformsync.NewWorker(aggregator))
	r.NoRoute(middlewares.NotFound)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !config.EnvBool("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Redis only backs the sync lock and the profile cache, both optional.
	if config.RedisConfigured() {
		config.ConnectRedisWithRetry()
		aggregator.WithCache(unified.NewProfileCache(config.GetRedisDB(), settings.ProfileCacheTTL))
	}
	ready.Store(true)

	logger.WithFields(logrus.Fields{
		"port":      port,
		"canonical": settings.CanonicalSystem,
		"support":   settings.SupportSystem,
		"hr":        settings.HRPriority,
	}).Info("unified backend ready")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
