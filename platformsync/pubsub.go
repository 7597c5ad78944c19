package platformsync

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/unified_backend/config"
)

// PublishSync hands a pending sync log to the push worker and returns the message id.
func PublishSync(ctx context.Context, payload SyncPubSubPayload) (string, error) {
	return config.PublishJSON(ctx, config.SyncTopic(), payload, config.EnvBool("PLATFORM_SYNC_CREATE_TOPIC", false))
}

// PubSubPushHandler always answers 204 so Pub/Sub never redelivers; failures are logged and
// stay visible on the sync log.
func PubSubPushHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBool("ENABLE_PLATFORM_SYNC_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.SyncLogId == 0 {
			c.Status(204)
			return
		}

		if err := w.ProcessPayload(c.Request.Context(), payload); err != nil {
			config.LogError(w.logger, "platformsync", "PubSubPushHandler", envelope.Message.ID, payload, err)
		}
		c.Status(204)
	}
}
