package config

import (
	"os"
	"strings"
)

// EnvBool parses common truthy/falsy spellings and falls back to def.
func EnvBool(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

// IsProduction is true when GO_ENV=production.
func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

// DebugEndpointsEnabled exposes /debug_api_response.
//
// Set via env:
// - ENABLE_DEBUG_ENDPOINTS=true (defaults to on outside production)
func DebugEndpointsEnabled() bool {
	return EnvBool("ENABLE_DEBUG_ENDPOINTS", !IsProduction())
}

// SyncViaPubSub hands sync runs to the Pub/Sub push worker instead of running them inline.
//
// Set via env:
// - PLATFORM_SYNC_VIA_PUBSUB=true (requires PUBSUB_PROJECT_ID)
func SyncViaPubSub() bool {
	return EnvBool("PLATFORM_SYNC_VIA_PUBSUB", false) && PubSubConfigured()
}

// SyncTopic is the Pub/Sub topic used for sync runs.
func SyncTopic() string {
	topic := strings.TrimSpace(os.Getenv("PLATFORM_SYNC_TOPIC"))
	if topic == "" {
		return "platform-sync"
	}
	return topic
}
