package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/utils"
)

const (
	HeaderCorrelationId = "x-correlation-id"
	HeaderHideDemoData  = "x-hide-demo-data"
)

// CorrelationID attaches the caller's x-correlation-id (or a fresh uuid) to the request context
// and echoes it back.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(HeaderCorrelationId))
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(HeaderCorrelationId, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// DemoScope marks the request so GORM reads skip seeded demo rows.
//
// Set via:
// - header x-hide-demo-data: true, or query ?hide_demo=true
// - HIDE_DEMO_DATA=true makes hiding the default (defaults to on in production)
func DemoScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		hide := config.EnvBool("HIDE_DEMO_DATA", config.IsProduction())
		raw := c.GetHeader(HeaderHideDemoData)
		if raw == "" {
			raw = c.Query("hide_demo")
		}
		if v, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			hide = v
		}
		if hide {
			c.Request = c.Request.WithContext(utils.SetHideDemoDataInContext(c.Request.Context(), true))
		}
		c.Next()
	}
}

// Readiness answers /healthz right away and returns 503 for everything else until ready is set.
func Readiness(ready *atomic.Bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready.Load() || config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}
