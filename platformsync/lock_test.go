package platformsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/models"
	"github.com/mmdatafocus/unified_backend/unified"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSyncSkipsWhileLocked(t *testing.T) {
	u, w := setup(t)
	useRedis(t)
	u.on("/hris/h1/employee", http.StatusOK, hrEmployees)
	integration := newIntegration(t, "h1", models.PlatformTypeHris)
	ctx := context.Background()

	held, err := config.GetRedisLock().Obtain(ctx, "lock:sync:h1", time.Minute, nil)
	require.NoError(t, err)

	syncLog, err := w.RunSync(ctx, integration, models.SyncTypeEmployees, "")
	assert.True(t, errors.Is(err, ErrSyncRunning))
	require.NotNil(t, syncLog)
	assert.Equal(t, 0, u.hits["/hris/h1/employee"])

	stored, err := models.GetSyncLog(ctx, syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, stored.Status)
	assert.Equal(t, ErrSyncRunning.Error(), stored.ErrorMessage)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(stored.SyncMetadata, &meta))
	assert.Equal(t, true, meta["skipped"])

	// a skipped run leaves the integration's health alone
	current, err := models.GetIntegration(ctx, integration.ID)
	require.NoError(t, err)
	assert.Empty(t, current.LastErrorMessage)

	require.NoError(t, held.Release(ctx))
	syncLog, err = w.RunSync(ctx, integration, models.SyncTypeEmployees, "")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPartial, syncLog.Status)
	assert.Equal(t, 1, u.hits["/hris/h1/employee"])
}

func TestRunSyncReleasesLock(t *testing.T) {
	u, w := setup(t)
	mr, _ := useRedis(t)
	u.on("/ticketing/zd/tickets", http.StatusOK, `[]`)
	integration := newIntegration(t, "zd", models.PlatformTypeTicketing)

	_, err := w.RunSync(context.Background(), integration, models.SyncTypeTickets, "")
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:sync:zd"))
}

func TestCanonicalSyncInvalidatesCachedProfiles(t *testing.T) {
	u, w := setup(t)
	mr, client := useRedis(t)
	w.aggregator.WithCache(unified.NewProfileCache(client, time.Minute))
	u.on("/passthrough/yt/youtube/users", http.StatusOK, `[{"email":"ann@x.com"}]`)
	u.on("/hris/h1/employee", http.StatusOK, hrEmployees)
	u.on("/hris/h2/employee", http.StatusOK, `{"data":[]}`)
	u.on("/hris/h3/employee", http.StatusOK, `{"data":[]}`)
	u.on("/ticketing/zd/customers", http.StatusOK, `{"tickets":[]}`)
	integration := newIntegration(t, "yt", models.PlatformTypePassthrough)
	ctx := context.Background()

	require.NoError(t, mr.Set("unified:profile:ann@x.com", `{"unified_profile":{"name":"stale"}}`))
	require.NoError(t, mr.Set("unified:profile:other@x.com", `{}`))

	syncLog, err := w.RunSync(ctx, integration, models.SyncTypeUsers, "")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, syncLog.Status)

	assert.False(t, mr.Exists("unified:profile:ann@x.com"))
	assert.True(t, mr.Exists("unified:profile:other@x.com"))
}

func TestSkippedRunLogsUnwritableSyncLog(t *testing.T) {
	u, w := setup(t)
	useRedis(t)
	logger, hook := test.NewNullLogger()
	w.logger = logger
	u.on("/hris/h1/employee", http.StatusOK, hrEmployees)
	integration := newIntegration(t, "h1", models.PlatformTypeHris)
	ctx := context.Background()

	syncLog, err := w.RunSync(ctx, integration, models.SyncTypeEmployees, "")
	require.NoError(t, err)
	require.True(t, syncLog.IsCompleted())

	held, err := config.GetRedisLock().Obtain(ctx, "lock:sync:h1", time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	_, err = w.Process(ctx, integration, syncLog, "")
	assert.True(t, errors.Is(err, ErrSyncRunning))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "markFailed", entry.Data["funcName"])
	assert.Contains(t, entry.Message, "sync log")
}
