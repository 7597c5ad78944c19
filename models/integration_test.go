package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/models"
	"github.com/mmdatafocus/unified_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createIntegration(t *testing.T, connectionId string) *models.Integration {
	t.Helper()
	integration, err := models.CreateIntegration(context.Background(), &models.NewIntegration{
		Name:                "Test " + connectionId,
		PlatformType:        models.PlatformTypeHris,
		UnifiedConnectionId: connectionId,
		ConnectionMetadata:  map[string]interface{}{"api_version": "v1"},
	})
	if err != nil {
		t.Fatalf("CreateIntegration(%s): %v", connectionId, err)
	}
	return integration
}

func TestCreateIntegrationDefaultsAndUniqueness(t *testing.T) {
	openTestDB(t)
	ctx := context.Background()

	integration := createIntegration(t, "conn-1")
	assert.Equal(t, models.IntegrationStatusActive, integration.Status)
	assert.JSONEq(t, `{"api_version":"v1"}`, string(integration.ConnectionMetadata))
	assert.Nil(t, integration.ApiEndpoints)

	_, err := models.CreateIntegration(ctx, &models.NewIntegration{
		Name:                "Duplicate",
		PlatformType:        models.PlatformTypeCrm,
		UnifiedConnectionId: "conn-1",
	})
	if err == nil {
		t.Fatalf("expected duplicate connection id to be rejected")
	}

	_, err = models.CreateIntegration(ctx, &models.NewIntegration{
		Name:                "Bad type",
		PlatformType:        "fax",
		UnifiedConnectionId: "conn-2",
	})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	found, err := models.GetIntegrationByConnectionId(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestIntegrationHealth(t *testing.T) {
	longAgo := time.Now().Add(-3 * time.Hour)
	recent := time.Now().Add(-10 * time.Minute)

	cases := []struct {
		name        string
		integration models.Integration
		healthy     bool
		status      string
	}{
		{"fresh sync", models.Integration{Status: models.IntegrationStatusActive, LastSyncAt: &recent}, true, models.SyncHealthHealthy},
		{"never synced", models.Integration{Status: models.IntegrationStatusActive}, true, models.SyncHealthNeedsSync},
		{"old error", models.Integration{Status: models.IntegrationStatusActive, LastErrorAt: &longAgo, LastSyncAt: &recent}, true, models.SyncHealthHealthy},
		{"recent error", models.Integration{Status: models.IntegrationStatusActive, LastErrorAt: &recent}, false, models.SyncHealthUnknown},
		{"error status", models.Integration{Status: models.IntegrationStatusError}, false, models.SyncHealthError},
		{"inactive", models.Integration{Status: models.IntegrationStatusInactive}, false, models.SyncHealthUnknown},
	}
	for _, tc := range cases {
		if got := tc.integration.Healthy(); got != tc.healthy {
			t.Fatalf("%s: Healthy() = %v, want %v", tc.name, got, tc.healthy)
		}
		if got := tc.integration.SyncStatus(); got != tc.status {
			t.Fatalf("%s: SyncStatus() = %q, want %q", tc.name, got, tc.status)
		}
	}
}

func TestMarkSyncSuccessAndError(t *testing.T) {
	openTestDB(t)
	ctx := context.Background()
	integration := createIntegration(t, "conn-mark")

	failed, err := integration.MarkSyncError(ctx, nil, models.SyncTypeEmployees, errors.New("401 Unauthorized"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, failed.Status)
	assert.Equal(t, "401 Unauthorized", integration.LastErrorMessage)
	assert.False(t, integration.Healthy())

	pending, err := models.CreateSyncStart(ctx, integration.ID, models.SyncTypeEmployees)
	require.NoError(t, err)
	done, err := integration.MarkSyncSuccess(ctx, pending, models.SyncTypeEmployees, models.SyncCounts{Processed: 2, Created: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, done.ID)
	assert.Equal(t, models.SyncStatusSuccess, done.Status)

	stored, err := models.GetIntegration(ctx, integration.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastErrorAt)
	assert.Empty(t, stored.LastErrorMessage)
	assert.NotNil(t, stored.LastSyncAt)
	assert.Equal(t, models.SyncHealthHealthy, stored.SyncStatus())
}

func TestUpdateStatus(t *testing.T) {
	openTestDB(t)
	ctx := context.Background()
	integration := createIntegration(t, "conn-status")

	require.NoError(t, integration.UpdateStatus(ctx, models.IntegrationStatusInactive))
	assert.False(t, integration.CanSync())
	require.NoError(t, integration.UpdateStatus(ctx, models.IntegrationStatusActive))
	assert.NotNil(t, integration.LastSyncAt)
	assert.True(t, integration.CanSync())
	assert.Error(t, integration.UpdateStatus(ctx, "paused"))
}

func TestDeleteIntegrationCascadesLogs(t *testing.T) {
	openTestDB(t)
	ctx := context.Background()
	integration := createIntegration(t, "conn-delete")

	_, err := models.CreateSyncStart(ctx, integration.ID, models.SyncTypeUsers)
	require.NoError(t, err)
	user, _, err := models.FindOrCreateFromPlatform(ctx, "f@x.com", models.PlatformSourceHR1, nil, &integration.ID)
	require.NoError(t, err)
	require.NotNil(t, user.IntegrationId)

	require.NoError(t, models.DeleteIntegration(ctx, integration.ID))

	logs, err := models.ListSyncLogs(ctx, integration.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	kept, err := models.GetPlatformUser(ctx, "f@x.com", models.PlatformSourceHR1)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Nil(t, kept.IntegrationId)

	assert.Error(t, models.DeleteIntegration(ctx, integration.ID))
}

func TestSeedDemoDataIsRepeatable(t *testing.T) {
	openTestDB(t)
	ctx := context.Background()

	first, err := models.SeedDemoData(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, first.Integrations)
	assert.EqualValues(t, 7, first.PlatformUsers)
	assert.EqualValues(t, 2, first.SyncLogs)

	second, err := models.SeedDemoData(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	john, err := models.GetPlatformUser(ctx, "john.doe@abc.com", models.PlatformSourceHR1)
	require.NoError(t, err)
	require.NotNil(t, john)
	assert.True(t, john.IsDemoUser)
	assert.Equal(t, "Engineering", john.Department)
	assert.Contains(t, string(john.UnifiedProfile), `"youtube_channel":"TechWithJohn"`)

	hidden := utils.SetHideDemoDataInContext(ctx, true)
	integrations, err := models.ListIntegrations(hidden, models.IntegrationFilter{})
	require.NoError(t, err)
	assert.Empty(t, integrations)

	var visible int64
	require.NoError(t, config.GetDB().WithContext(ctx).Model(&models.Integration{}).Count(&visible).Error)
	assert.EqualValues(t, 5, visible)
}
