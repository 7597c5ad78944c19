package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/unified_backend/config"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PlatformTypeTicketing   = "ticketing"
	PlatformTypeHris        = "hris"
	PlatformTypeCrm         = "crm"
	PlatformTypeMessaging   = "messaging"
	PlatformTypePassthrough = "passthrough"
)

var PlatformTypes = []string{
	PlatformTypeTicketing,
	PlatformTypeHris,
	PlatformTypeCrm,
	PlatformTypeMessaging,
	PlatformTypePassthrough,
}

const (
	IntegrationStatusActive     = "active"
	IntegrationStatusInactive   = "inactive"
	IntegrationStatusError      = "error"
	IntegrationStatusConnecting = "connecting"
)

const (
	SyncHealthHealthy   = "healthy"
	SyncHealthNeedsSync = "needs_sync"
	SyncHealthError     = "error"
	SyncHealthUnknown   = "unknown"
)

// syncInterval is how old a sync (or an error) may get before the integration needs attention.
const syncInterval = time.Hour

type Integration struct {
	ID                  uint           `gorm:"primary_key" json:"id"`
	Name                string         `gorm:"size:255;not null" json:"name" validate:"required"`
	PlatformType        string         `gorm:"size:30;not null;index" json:"platform_type" validate:"required,oneof=ticketing hris crm messaging passthrough"`
	UnifiedConnectionId string         `gorm:"size:128;not null;uniqueIndex" json:"unified_connection_id" validate:"required"`
	Status              string         `gorm:"size:20;not null;default:active;index" json:"status" validate:"required,oneof=active inactive error connecting"`
	ConnectionMetadata  datatypes.JSON `json:"connection_metadata"`
	ApiEndpoints        datatypes.JSON `json:"api_endpoints"`
	LastSyncAt          *time.Time     `json:"last_sync_at"`
	LastErrorAt         *time.Time     `json:"last_error_at"`
	LastErrorMessage    string         `gorm:"type:text" json:"last_error_message"`
	IsDemoData          bool           `gorm:"not null;default:false;index" json:"is_demo_data"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	DataSyncLogs []DataSyncLog `gorm:"constraint:OnDelete:CASCADE" json:"-" validate:"-"`
}

type NewIntegration struct {
	Name                string                 `json:"name" binding:"required"`
	PlatformType        string                 `json:"platform_type" binding:"required"`
	UnifiedConnectionId string                 `json:"unified_connection_id" binding:"required"`
	Status              string                 `json:"status"`
	ConnectionMetadata  map[string]interface{} `json:"connection_metadata"`
	ApiEndpoints        map[string]interface{} `json:"api_endpoints"`
	IsDemoData          bool                   `json:"is_demo_data"`
}

type IntegrationFilter struct {
	PlatformType string
	Status       string
	DemoOnly     bool
}

func (i *Integration) BeforeSave(tx *gorm.DB) error {
	if i.Status == "" {
		i.Status = IntegrationStatusActive
	}
	return validateModel(i)
}

func (i *Integration) Healthy() bool {
	return i.healthyAt(time.Now())
}

// An active integration is healthy unless it reported an error within the last sync interval.
func (i *Integration) healthyAt(now time.Time) bool {
	if i.Status != IntegrationStatusActive {
		return false
	}
	return i.LastErrorAt == nil || i.LastErrorAt.Before(now.Add(-syncInterval))
}

func (i *Integration) NeedsSync() bool {
	return i.needsSyncAt(time.Now())
}

func (i *Integration) needsSyncAt(now time.Time) bool {
	return i.LastSyncAt == nil || i.LastSyncAt.Before(now.Add(-syncInterval))
}

func (i *Integration) SyncStatus() string {
	return i.syncStatusAt(time.Now())
}

func (i *Integration) syncStatusAt(now time.Time) string {
	healthy := i.healthyAt(now)
	switch {
	case healthy && !i.needsSyncAt(now):
		return SyncHealthHealthy
	case healthy:
		return SyncHealthNeedsSync
	case i.Status == IntegrationStatusError:
		return SyncHealthError
	default:
		return SyncHealthUnknown
	}
}

func (i *Integration) CanSync() bool {
	return i.Status == IntegrationStatusActive && strings.TrimSpace(i.UnifiedConnectionId) != ""
}

func CreateIntegration(ctx context.Context, input *NewIntegration) (*Integration, error) {
	connMeta, err := toJSON(input.ConnectionMetadata)
	if err != nil {
		return nil, err
	}
	endpoints, err := toJSON(input.ApiEndpoints)
	if err != nil {
		return nil, err
	}

	integration := Integration{
		Name:                strings.TrimSpace(input.Name),
		PlatformType:        input.PlatformType,
		UnifiedConnectionId: strings.TrimSpace(input.UnifiedConnectionId),
		Status:              input.Status,
		ConnectionMetadata:  connMeta,
		ApiEndpoints:        endpoints,
		IsDemoData:          input.IsDemoData,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&integration).Error; err != nil {
		return nil, err
	}
	return &integration, nil
}

// GetIntegrationByConnectionId returns nil, nil when no integration owns the connection id.
func GetIntegrationByConnectionId(ctx context.Context, connectionId string) (*Integration, error) {
	db := config.GetDB()
	var integration Integration
	err := db.WithContext(ctx).Where("unified_connection_id = ?", connectionId).Take(&integration).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func GetIntegration(ctx context.Context, id uint) (*Integration, error) {
	db := config.GetDB()
	var integration Integration
	if err := db.WithContext(ctx).Take(&integration, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func ListIntegrations(ctx context.Context, filter IntegrationFilter) ([]Integration, error) {
	db := config.GetDB().WithContext(ctx)
	if filter.PlatformType != "" {
		db = db.Where("platform_type = ?", filter.PlatformType)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.DemoOnly {
		db = db.Where("is_demo_data = ?", true)
	}
	var integrations []Integration
	if err := db.Order("id").Find(&integrations).Error; err != nil {
		return nil, err
	}
	return integrations, nil
}

// DeleteIntegration removes the integration and its sync logs; platform users only lose the reference.
func DeleteIntegration(ctx context.Context, id uint) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("integration_id = ?", id).Delete(&DataSyncLog{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&PlatformUser{}).Where("integration_id = ?", id).
			UpdateColumn("integration_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&Integration{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (i *Integration) UpdateStatus(ctx context.Context, status string) error {
	switch status {
	case IntegrationStatusActive, IntegrationStatusInactive, IntegrationStatusError, IntegrationStatusConnecting:
	default:
		return fmt.Errorf("invalid integration status %q", status)
	}
	db := config.GetDB()
	updates := map[string]interface{}{"status": status}
	// reactivating counts as a fresh sync
	if status == IntegrationStatusActive && i.Status != IntegrationStatusActive {
		now := time.Now()
		updates["last_sync_at"] = now
		i.LastSyncAt = &now
	}
	if err := db.WithContext(ctx).Model(i).Updates(updates).Error; err != nil {
		return err
	}
	i.Status = status
	return nil
}

// MarkSyncSuccess completes syncLog (or appends a completed log when nil) and clears the last error.
func (i *Integration) MarkSyncSuccess(ctx context.Context, syncLog *DataSyncLog, syncType string, counts SyncCounts, metadata map[string]interface{}) (*DataSyncLog, error) {
	db := config.GetDB()
	now := time.Now()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if syncLog == nil {
			created, err := createCompletedLog(tx, i.ID, syncType, SyncStatusSuccess, counts, metadata, "", now)
			if err != nil {
				return err
			}
			syncLog = created
		} else if err := syncLog.complete(tx, counts, metadata, now); err != nil {
			return err
		}
		return tx.Model(i).Updates(map[string]interface{}{
			"last_sync_at":       now,
			"last_error_at":      nil,
			"last_error_message": "",
		}).Error
	})
	if err != nil {
		return nil, err
	}
	i.LastSyncAt = &now
	i.LastErrorAt = nil
	i.LastErrorMessage = ""
	return syncLog, nil
}

// MarkSyncError fails syncLog (or appends a failed log when nil) and records the error on the integration.
func (i *Integration) MarkSyncError(ctx context.Context, syncLog *DataSyncLog, syncType string, cause error, metadata map[string]interface{}) (*DataSyncLog, error) {
	if cause == nil {
		return nil, errors.New("sync error is required")
	}
	db := config.GetDB()
	now := time.Now()
	message := cause.Error()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if syncLog == nil {
			created, err := createCompletedLog(tx, i.ID, syncType, SyncStatusFailed, SyncCounts{}, metadata, message, now)
			if err != nil {
				return err
			}
			syncLog = created
		} else if err := syncLog.fail(tx, message, metadata, now); err != nil {
			return err
		}
		return tx.Model(i).Updates(map[string]interface{}{
			"last_error_at":      now,
			"last_error_message": message,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	i.LastErrorAt = &now
	i.LastErrorMessage = message
	return syncLog, nil
}

// RecordError stores message as the latest error without touching any sync log.
func (i *Integration) RecordError(ctx context.Context, message string) error {
	now := time.Now()
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(i).Updates(map[string]interface{}{
		"last_error_at":      now,
		"last_error_message": message,
	}).Error; err != nil {
		return err
	}
	i.LastErrorAt = &now
	i.LastErrorMessage = message
	return nil
}

func toJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return datatypes.JSON(b), nil
}
