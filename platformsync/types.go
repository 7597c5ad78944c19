package platformsync

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/unified_backend/models"
	"github.com/mmdatafocus/unified_backend/utils"
)

type TriggerSyncRequest struct {
	SyncType string `json:"sync_type" binding:"required"`
	Source   string `json:"source"`
}

type IntegrationResponse struct {
	ID                  uint            `json:"id"`
	Name                string          `json:"name"`
	PlatformType        string          `json:"platform_type"`
	UnifiedConnectionId string          `json:"unified_connection_id"`
	Status              string          `json:"status"`
	SyncStatus          string          `json:"sync_status"`
	Healthy             bool            `json:"healthy"`
	NeedsSync           bool            `json:"needs_sync"`
	LastSyncAt          *string         `json:"last_sync_at"`
	LastErrorAt         *string         `json:"last_error_at"`
	LastErrorMessage    string          `json:"last_error_message,omitempty"`
	IsDemoData          bool            `json:"is_demo_data"`
	ConnectionMetadata  json.RawMessage `json:"connection_metadata,omitempty"`
	ApiEndpoints        json.RawMessage `json:"api_endpoints,omitempty"`
}

type IntegrationDetailResponse struct {
	Integration IntegrationResponse            `json:"integration"`
	RecentSyncs []SyncLogResponse              `json:"recent_syncs"`
	Performance *models.SyncPerformanceSummary `json:"performance"`
}

type SyncLogResponse struct {
	ID               uint            `json:"id"`
	IntegrationId    uint            `json:"integration_id"`
	SyncType         string          `json:"sync_type"`
	Status           string          `json:"status"`
	RecordsProcessed int             `json:"records_processed"`
	RecordsCreated   int             `json:"records_created"`
	RecordsUpdated   int             `json:"records_updated"`
	RecordsFailed    int             `json:"records_failed"`
	SuccessRate      float64         `json:"success_rate"`
	DurationMinutes  float64         `json:"duration_minutes"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	SyncMetadata     json.RawMessage `json:"sync_metadata,omitempty"`
	StartedAt        *string         `json:"started_at"`
	CompletedAt      *string         `json:"completed_at"`
}

type SyncHistoryResponse struct {
	Items []SyncLogResponse `json:"items"`
}

type PlatformUserResponse struct {
	ID             uint                   `json:"id"`
	Email          string                 `json:"email"`
	Name           string                 `json:"name"`
	FullName       string                 `json:"full_name"`
	Phone          string                 `json:"phone"`
	PlatformSource string                 `json:"platform_source"`
	AvatarURL      string                 `json:"avatar_url"`
	Employment     *models.EmploymentInfo `json:"employment,omitempty"`
	SupportTickets int                    `json:"support_tickets_count"`
	UnifiedProfile json.RawMessage        `json:"unified_profile,omitempty"`
	IsDemoUser     bool                   `json:"is_demo_user"`
	Active         bool                   `json:"active"`
	LastSeenAt     *string                `json:"last_seen_at"`
}

// Pub/Sub push body as delivered by a push subscription.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	SyncLogId    uint   `json:"sync_log_id"`
	ConnectionId string `json:"connection_id"`
	Source       string `json:"source"`
}

func mapIntegration(i models.Integration) IntegrationResponse {
	return IntegrationResponse{
		ID:                  i.ID,
		Name:                i.Name,
		PlatformType:        i.PlatformType,
		UnifiedConnectionId: i.UnifiedConnectionId,
		Status:              i.Status,
		SyncStatus:          i.SyncStatus(),
		Healthy:             i.Healthy(),
		NeedsSync:           i.NeedsSync(),
		LastSyncAt:          utils.FormatTime(i.LastSyncAt),
		LastErrorAt:         utils.FormatTime(i.LastErrorAt),
		LastErrorMessage:    i.LastErrorMessage,
		IsDemoData:          i.IsDemoData,
		ConnectionMetadata:  json.RawMessage(i.ConnectionMetadata),
		ApiEndpoints:        json.RawMessage(i.ApiEndpoints),
	}
}

func mapSyncLog(l models.DataSyncLog) SyncLogResponse {
	started := l.StartedAt
	return SyncLogResponse{
		ID:               l.ID,
		IntegrationId:    l.IntegrationId,
		SyncType:         l.SyncType,
		Status:           l.Status,
		RecordsProcessed: l.RecordsProcessed,
		RecordsCreated:   l.RecordsCreated,
		RecordsUpdated:   l.RecordsUpdated,
		RecordsFailed:    l.RecordsFailed,
		SuccessRate:      l.SuccessRate(),
		DurationMinutes:  l.DurationMinutes(),
		ErrorMessage:     l.ErrorMessage,
		SyncMetadata:     json.RawMessage(l.SyncMetadata),
		StartedAt:        utils.FormatTime(&started),
		CompletedAt:      utils.FormatTime(l.CompletedAt),
	}
}

func mapSyncLogs(logs []models.DataSyncLog) []SyncLogResponse {
	out := make([]SyncLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, mapSyncLog(l))
	}
	return out
}

func mapPlatformUser(u models.PlatformUser) PlatformUserResponse {
	lastSeen := u.LastActivity()
	return PlatformUserResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		FullName:       u.FullName(),
		Phone:          u.Phone,
		PlatformSource: u.PlatformSource,
		AvatarURL:      u.AvatarURL(),
		Employment:     u.EmploymentInfo(),
		SupportTickets: u.SupportTicketsCount(),
		UnifiedProfile: json.RawMessage(u.UnifiedProfile),
		IsDemoUser:     u.IsDemoUser,
		Active:         u.IsActive(),
		LastSeenAt:     formatNonZero(lastSeen),
	}
}

func formatNonZero(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	return utils.FormatTime(&t)
}
