package platformsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/models"
)

// RegisterRoutes mounts the sync API and the Pub/Sub push endpoint.
func RegisterRoutes(r gin.IRouter, w *Worker) {
	api := r.Group("/api")
	api.GET("/integrations", ListIntegrationsHandler())
	api.GET("/integrations/:connection_id", IntegrationDetailHandler())
	api.POST("/integrations/:connection_id/sync", TriggerSyncHandler(w))
	api.GET("/integrations/:connection_id/sync_logs", SyncHistoryHandler())
	api.GET("/sync_logs/summary", SyncSummaryHandler())
	api.GET("/sync_logs/:id", SyncLogDetailHandler())
	api.GET("/platform_users", PlatformUsersHandler())

	r.POST("/pubsub/platform-sync", PubSubPushHandler(w))
}

func ListIntegrationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.IntegrationFilter{
			PlatformType: strings.TrimSpace(c.Query("platform_type")),
			Status:       strings.TrimSpace(c.Query("status")),
			DemoOnly:     c.Query("demo") == "true",
		}
		integrations, err := models.ListIntegrations(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items := make([]IntegrationResponse, 0, len(integrations))
		for _, i := range integrations {
			items = append(items, mapIntegration(i))
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func IntegrationDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		integration, ok := lookupIntegration(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		logs, err := models.ListSyncLogs(ctx, integration.ID, 5)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		perf, err := models.GetSyncPerformanceSummary(ctx, integration.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, IntegrationDetailResponse{
			Integration: mapIntegration(*integration),
			RecentSyncs: mapSyncLogs(logs),
			Performance: perf,
		})
	}
}

// TriggerSyncHandler queues the sync on Pub/Sub when enabled and runs it inline otherwise.
func TriggerSyncHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		integration, ok := lookupIntegration(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		syncLog, err := w.StartSync(ctx, integration, req.SyncType)
		if err != nil {
			switch {
			case errors.Is(err, ErrUnknownSyncType):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, ErrIntegrationBlocked):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		if config.SyncViaPubSub() {
			payload := SyncPubSubPayload{
				SyncLogId:    syncLog.ID,
				ConnectionId: integration.UnifiedConnectionId,
				Source:       req.Source,
			}
			_, err := PublishSync(ctx, payload)
			if err == nil {
				c.JSON(http.StatusAccepted, gin.H{"id": syncLog.ID, "status": syncLog.Status, "queued": true})
				return
			}
			// fall through to an inline run
			config.LogError(w.logger, "platformsync", "TriggerSyncHandler", integration.UnifiedConnectionId, payload, err)
		}

		syncLog, err = w.Process(ctx, integration, syncLog, req.Source)
		if errors.Is(err, ErrSyncRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil && !errors.Is(err, ErrIntegrationBlocked) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapSyncLog(*syncLog))
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		integration, ok := lookupIntegration(c)
		if !ok {
			return
		}
		logs, err := models.ListSyncLogs(c.Request.Context(), integration.ID, queryLimit(c, 20, 100))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: mapSyncLogs(logs)})
	}
}

// SyncSummaryHandler reports performance across every integration, or one via ?connection_id=.
func SyncSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var integrationId uint
		if connId := strings.TrimSpace(c.Query("connection_id")); connId != "" {
			integration, err := models.GetIntegrationByConnectionId(ctx, connId)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if integration == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "integration not found"})
				return
			}
			integrationId = integration.ID
		}
		summary, err := models.GetSyncPerformanceSummary(ctx, integrationId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func SyncLogDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		syncLog, err := models.GetSyncLog(c.Request.Context(), uint(id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if syncLog == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync log not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"log": mapSyncLog(*syncLog), "summary": syncLog.Summary()})
	}
}

func PlatformUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.PlatformUserFilter{
			Source:   strings.TrimSpace(c.Query("source")),
			Email:    strings.TrimSpace(c.Query("email")),
			DemoOnly: c.Query("demo") == "true",
			Limit:    queryLimit(c, 50, 500),
		}
		users, err := models.ListPlatformUsers(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items := make([]PlatformUserResponse, 0, len(users))
		for _, u := range users {
			items = append(items, mapPlatformUser(u))
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func lookupIntegration(c *gin.Context) (*models.Integration, bool) {
	integration, err := models.GetIntegrationByConnectionId(c.Request.Context(), c.Param("connection_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if integration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "integration not found"})
		return nil, false
	}
	return integration, true
}

func queryLimit(c *gin.Context, def, max int) int {
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}
