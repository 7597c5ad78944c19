package middlewares

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/unified_backend/config"
)

// CORS allows every origin outside production. In production only CORS_ALLOWED_ORIGINS
// (comma-separated) is allowed, and an empty list denies all.
func CORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if config.IsProduction() {
		corsConfig.AllowOrigins = SplitAndTrim(allowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			// cors.New panics on an empty config; a placeholder origin matches nothing.
			corsConfig.AllowOrigins = []string{"https://invalid.localhost"}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", HeaderCorrelationId, HeaderHideDemoData)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", HeaderCorrelationId)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return cors.New(corsConfig)
}

func SplitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
