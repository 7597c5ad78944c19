// platform-sync-service runs the sync bookkeeping API and the Pub/Sub push worker on their own,
// without the dashboard routes.
//
// Usage:
//
//	DB_DRIVER=... DB_* ... UNIFIED_API_KEY=... go run ./cmd/platform-sync-service
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
	"github.com/mmdatafocus/unified_backend/middlewares"
	"github.com/mmdatafocus/unified_backend/models"
	"github.com/mmdatafocus/unified_backend/platformsync"
	"github.com/mmdatafocus/unified_backend/unified"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("PLATFORM_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	configPath := strings.TrimSpace(os.Getenv("PLATFORM_CONFIG_PATH"))
	if configPath == "" {
		configPath = "."
	}
	settings, err := config.LoadPlatformSettings(configPath)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "platform settings"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	aggregator := unified.NewAggregator(unified.NewAccessor(unified.NewClient(settings)), settings)

	var ready atomic.Bool
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.CorrelationID())
	r.Use(middlewares.Readiness(&ready))
	r.Use(middlewares.RequestLogger(logger))
	r.Use(middlewares.DemoScope())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

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

	// The push worker relies on the per-integration lock, so connect redis whenever it is configured.
	if config.RedisConfigured() {
		config.ConnectRedisWithRetry()
		aggregator.WithCache(unified.NewProfileCache(config.GetRedisDB(), settings.ProfileCacheTTL))
	} else {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn("REDIS_ADDRESS not set; syncs run without the integration lock")
	}
	ready.Store(true)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
