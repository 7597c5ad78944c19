package platformsync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/unified_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(w *Worker) *gin.Engine {
	r := gin.New()
	RegisterRoutes(r, w)
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTriggerSyncHandlerRunsInline(t *testing.T) {
	u, w := setup(t)
	u.on("/hris/h1/employee", http.StatusOK, hrEmployees)
	newIntegration(t, "h1", models.PlatformTypeHris)
	r := newRouter(w)

	rec := do(t, r, http.MethodPost, "/api/integrations/h1/sync", []byte(`{"sync_type":"employees"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got SyncLogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.SyncStatusPartial, got.Status)
	assert.Equal(t, 2, got.RecordsCreated)
	assert.InDelta(t, 66.67, got.SuccessRate, 0.001)
	assert.NotNil(t, got.CompletedAt)

	rec = do(t, r, http.MethodGet, "/api/integrations/h1/sync_logs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history SyncHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Items, 1)
	assert.Equal(t, got.ID, history.Items[0].ID)
}

func TestTriggerSyncHandlerRejects(t *testing.T) {
	_, w := setup(t)
	newIntegration(t, "h1", models.PlatformTypeHris)
	r := newRouter(w)

	cases := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"missing body", "/api/integrations/h1/sync", `{}`, http.StatusBadRequest},
		{"unknown type", "/api/integrations/h1/sync", `{"sync_type":"invoices"}`, http.StatusBadRequest},
		{"unknown connection", "/api/integrations/nope/sync", `{"sync_type":"users"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := do(t, r, http.MethodPost, tc.target, []byte(tc.body))
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.status, rec.Code, rec.Body.String())
		}
	}
}

func TestTriggerSyncHandlerInactiveIntegration(t *testing.T) {
	_, w := setup(t)
	integration := newIntegration(t, "h1", models.PlatformTypeHris)
	require.NoError(t, integration.UpdateStatus(context.Background(), models.IntegrationStatusInactive))

	rec := do(t, newRouter(w), http.MethodPost, "/api/integrations/h1/sync", []byte(`{"sync_type":"users"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIntegrationHandlers(t *testing.T) {
	_, w := setup(t)
	_, err := models.SeedDemoData(context.Background())
	require.NoError(t, err)
	r := newRouter(w)

	rec := do(t, r, http.MethodGet, "/api/integrations?platform_type=hris", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []IntegrationResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Items, 3)
	for _, item := range list.Items {
		assert.Equal(t, models.PlatformTypeHris, item.PlatformType)
		assert.True(t, item.IsDemoData)
	}

	rec = do(t, r, http.MethodGet, "/api/integrations/demo_zendesk_001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail IntegrationDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "demo_zendesk_001", detail.Integration.UnifiedConnectionId)
	assert.Len(t, detail.RecentSyncs, 2)
	assert.Equal(t, int64(2), detail.Performance.SuccessfulSyncs)

	rec = do(t, r, http.MethodGet, "/api/integrations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/sync_logs/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.SyncPerformanceSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(2), summary.TotalSyncs)
	assert.Equal(t, float64(100), summary.SuccessRate)

	rec = do(t, r, http.MethodGet, "/api/sync_logs/summary?connection_id=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/sync_logs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, r, http.MethodGet, "/api/sync_logs/12345", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlatformUsersHandler(t *testing.T) {
	_, w := setup(t)
	_, err := models.SeedDemoData(context.Background())
	require.NoError(t, err)

	rec := do(t, newRouter(w), http.MethodGet, "/api/platform_users?source=zendesk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []PlatformUserResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	for _, u := range list.Items {
		assert.Equal(t, "zendesk", u.PlatformSource)
		assert.True(t, u.IsDemoUser)
		assert.Nil(t, u.Employment)
		assert.NotEmpty(t, u.AvatarURL)
	}
}

func TestPubSubPushHandler(t *testing.T) {
	u, w := setup(t)
	u.on("/ticketing/zd/tickets", http.StatusOK, `[{"id":1}]`)
	integration := newIntegration(t, "zd", models.PlatformTypeTicketing)
	ctx := context.Background()
	syncLog, err := w.StartSync(ctx, integration, models.SyncTypeTickets)
	require.NoError(t, err)
	r := newRouter(w)

	rec := do(t, r, http.MethodPost, "/pubsub/platform-sync", []byte(`not json`))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	data, err := json.Marshal(SyncPubSubPayload{SyncLogId: syncLog.ID, ConnectionId: "zd"})
	require.NoError(t, err)
	var envelope PubSubPushEnvelope
	envelope.Message.Data = data
	envelope.Message.ID = "m-1"
	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	rec = do(t, r, http.MethodPost, "/pubsub/platform-sync", body)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := models.GetSyncLog(ctx, syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, stored.Status)
	assert.Equal(t, 1, stored.RecordsProcessed)
}
