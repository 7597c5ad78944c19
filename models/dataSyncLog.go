package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SyncTypeUsers     = "users"
	SyncTypeTickets   = "tickets"
	SyncTypeEmployees = "employees"
	SyncTypeCompanies = "companies"
	SyncTypeContacts  = "contacts"
	SyncTypeAnalytics = "analytics"
)

var SyncTypes = []string{
	SyncTypeUsers,
	SyncTypeTickets,
	SyncTypeEmployees,
	SyncTypeCompanies,
	SyncTypeContacts,
	SyncTypeAnalytics,
}

// A log starts pending and moves exactly once to success, failed or partial.
const (
	SyncStatusPending = "pending"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
	SyncStatusPartial = "partial"
)

var ErrSyncLogCompleted = errors.New("sync log already completed")

type DataSyncLog struct {
	ID               uint           `gorm:"primary_key" json:"id"`
	IntegrationId    uint           `gorm:"not null;index" json:"integration_id" validate:"required"`
	SyncType         string         `gorm:"size:30;not null;index" json:"sync_type" validate:"required,oneof=users tickets employees companies contacts analytics"`
	Status           string         `gorm:"size:20;not null;index" json:"status" validate:"required,oneof=pending success failed partial"`
	RecordsProcessed int            `gorm:"not null;default:0" json:"records_processed"`
	RecordsCreated   int            `gorm:"not null;default:0" json:"records_created"`
	RecordsUpdated   int            `gorm:"not null;default:0" json:"records_updated"`
	RecordsFailed    int            `gorm:"not null;default:0" json:"records_failed"`
	SyncMetadata     datatypes.JSON `json:"sync_metadata"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message"`
	StartedAt        time.Time      `gorm:"not null;index" json:"started_at"`
	CompletedAt      *time.Time     `gorm:"index" json:"completed_at"`
	DurationSeconds  int            `gorm:"not null;default:0" json:"duration_seconds"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncCounts are the per-record outcomes of one sync run.
type SyncCounts struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// Status derives the terminal state: nothing stored and something failed is a failure,
// some failures alongside stored records is partial.
func (c SyncCounts) Status() string {
	stored := c.Created + c.Updated
	switch {
	case c.Failed > 0 && stored == 0:
		return SyncStatusFailed
	case c.Failed > 0:
		return SyncStatusPartial
	default:
		return SyncStatusSuccess
	}
}

type SyncSummary struct {
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Processed   int     `json:"processed"`
	Created     int     `json:"created"`
	Updated     int     `json:"updated"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	Duration    float64 `json:"duration"`
}

type SyncPerformanceSummary struct {
	TotalSyncs            int64   `json:"total_syncs"`
	SuccessfulSyncs       int64   `json:"successful_syncs"`
	FailedSyncs           int64   `json:"failed_syncs"`
	PartialSyncs          int64   `json:"partial_syncs"`
	PendingSyncs          int64   `json:"pending_syncs"`
	SuccessRate           float64 `json:"success_rate"`
	AverageDuration       float64 `json:"average_duration"`
	TotalRecordsProcessed int64   `json:"total_records_processed"`
	TotalRecordsCreated   int64   `json:"total_records_created"`
	TotalRecordsUpdated   int64   `json:"total_records_updated"`
	TotalRecordsFailed    int64   `json:"total_records_failed"`
	OverallSuccessRate    float64 `json:"overall_success_rate"`
}

func (l *DataSyncLog) BeforeSave(tx *gorm.DB) error {
	return validateModel(l)
}

// SuccessRate is (created+updated)/processed as a percentage rounded to 2 places; 0 when nothing was processed.
func (l *DataSyncLog) SuccessRate() float64 {
	return percentage(int64(l.RecordsCreated+l.RecordsUpdated), int64(l.RecordsProcessed))
}

func (l *DataSyncLog) DurationMinutes() float64 {
	return decimal.NewFromInt(int64(l.DurationSeconds)).
		Div(decimal.NewFromInt(60)).
		Round(2).
		InexactFloat64()
}

func (l *DataSyncLog) IsCompleted() bool {
	return l.Status != SyncStatusPending
}

func (l *DataSyncLog) HasErrors() bool {
	return l.RecordsFailed > 0
}

func (l *DataSyncLog) Summary() SyncSummary {
	return SyncSummary{
		Type:        l.SyncType,
		Status:      l.Status,
		Processed:   l.RecordsProcessed,
		Created:     l.RecordsCreated,
		Updated:     l.RecordsUpdated,
		Failed:      l.RecordsFailed,
		SuccessRate: l.SuccessRate(),
		Duration:    l.DurationMinutes(),
	}
}

// CreateSyncStart appends a pending log for integrationId.
func CreateSyncStart(ctx context.Context, integrationId uint, syncType string) (*DataSyncLog, error) {
	syncLog := DataSyncLog{
		IntegrationId: integrationId,
		SyncType:      syncType,
		Status:        SyncStatusPending,
		StartedAt:     time.Now(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&syncLog).Error; err != nil {
		return nil, err
	}
	return &syncLog, nil
}

func GetSyncLog(ctx context.Context, id uint) (*DataSyncLog, error) {
	db := config.GetDB()
	var syncLog DataSyncLog
	if err := db.WithContext(ctx).Take(&syncLog, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &syncLog, nil
}

// ListSyncLogs returns the newest logs first; integrationId 0 lists every integration.
func ListSyncLogs(ctx context.Context, integrationId uint, limit int) ([]DataSyncLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	db := config.GetDB().WithContext(ctx)
	if integrationId != 0 {
		db = db.Where("integration_id = ?", integrationId)
	}
	var logs []DataSyncLog
	if err := db.Order("started_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// MarkCompleted records the counts and the derived terminal status.
func (l *DataSyncLog) MarkCompleted(ctx context.Context, counts SyncCounts, metadata map[string]interface{}) error {
	db := config.GetDB()
	return l.complete(db.WithContext(ctx), counts, metadata, time.Now())
}

// MarkFailed records message as the failure of the whole run.
func (l *DataSyncLog) MarkFailed(ctx context.Context, message string, metadata map[string]interface{}) error {
	db := config.GetDB()
	return l.fail(db.WithContext(ctx), message, metadata, time.Now())
}

func (l *DataSyncLog) complete(tx *gorm.DB, counts SyncCounts, metadata map[string]interface{}, now time.Time) error {
	meta, err := mergeMetadata(l.SyncMetadata, metadata)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"status":            counts.Status(),
		"records_processed": counts.Processed,
		"records_created":   counts.Created,
		"records_updated":   counts.Updated,
		"records_failed":    counts.Failed,
		"sync_metadata":     meta,
		"completed_at":      now,
		"duration_seconds":  durationSeconds(l.StartedAt, now),
	}
	if err := l.finish(tx, updates); err != nil {
		return err
	}
	l.Status = counts.Status()
	l.RecordsProcessed = counts.Processed
	l.RecordsCreated = counts.Created
	l.RecordsUpdated = counts.Updated
	l.RecordsFailed = counts.Failed
	l.SyncMetadata = meta
	l.CompletedAt = &now
	l.DurationSeconds = durationSeconds(l.StartedAt, now)
	return nil
}

func (l *DataSyncLog) fail(tx *gorm.DB, message string, metadata map[string]interface{}, now time.Time) error {
	meta, err := mergeMetadata(l.SyncMetadata, metadata)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"status":           SyncStatusFailed,
		"error_message":    message,
		"sync_metadata":    meta,
		"completed_at":     now,
		"duration_seconds": durationSeconds(l.StartedAt, now),
	}
	if err := l.finish(tx, updates); err != nil {
		return err
	}
	l.Status = SyncStatusFailed
	l.ErrorMessage = message
	l.SyncMetadata = meta
	l.CompletedAt = &now
	l.DurationSeconds = durationSeconds(l.StartedAt, now)
	return nil
}

// finish only touches rows that are still pending, so a log is completed at most once
// even when two workers race on the same run.
func (l *DataSyncLog) finish(tx *gorm.DB, updates map[string]interface{}) error {
	if l.ID == 0 {
		return errors.New("sync log is not persisted")
	}
	res := tx.Session(&gorm.Session{SkipHooks: true}).
		Model(&DataSyncLog{}).
		Where("id = ? AND status = ?", l.ID, SyncStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSyncLogCompleted
	}
	return nil
}

func createCompletedLog(tx *gorm.DB, integrationId uint, syncType, status string, counts SyncCounts, metadata map[string]interface{}, message string, now time.Time) (*DataSyncLog, error) {
	meta, err := toJSON(metadata)
	if err != nil {
		return nil, err
	}
	startedAt := now
	if v, ok := metadata["started_at"].(time.Time); ok {
		startedAt = v
	}
	syncLog := DataSyncLog{
		IntegrationId:    integrationId,
		SyncType:         syncType,
		Status:           status,
		RecordsProcessed: counts.Processed,
		RecordsCreated:   counts.Created,
		RecordsUpdated:   counts.Updated,
		RecordsFailed:    counts.Failed,
		SyncMetadata:     meta,
		ErrorMessage:     message,
		StartedAt:        startedAt,
		CompletedAt:      &now,
		DurationSeconds:  durationSeconds(startedAt, now),
	}
	if err := tx.Create(&syncLog).Error; err != nil {
		return nil, err
	}
	return &syncLog, nil
}

type syncTotalsRow struct {
	Status    string
	Count     int64
	Processed int64
	Created   int64
	Updated   int64
	Failed    int64
	Duration  float64
}

// GetSyncPerformanceSummary aggregates logs of one integration, or of all of them when integrationId is 0.
func GetSyncPerformanceSummary(ctx context.Context, integrationId uint) (*SyncPerformanceSummary, error) {
	db := config.GetDB().WithContext(ctx).Model(&DataSyncLog{})
	if integrationId != 0 {
		db = db.Where("integration_id = ?", integrationId)
	}
	var rows []syncTotalsRow
	err := db.Select(`status,
		COUNT(*) AS count,
		COALESCE(SUM(records_processed), 0) AS processed,
		COALESCE(SUM(records_created), 0) AS created,
		COALESCE(SUM(records_updated), 0) AS updated,
		COALESCE(SUM(records_failed), 0) AS failed,
		COALESCE(AVG(duration_seconds), 0) AS duration`).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var summary SyncPerformanceSummary
	for _, r := range rows {
		summary.TotalSyncs += r.Count
		summary.TotalRecordsProcessed += r.Processed
		summary.TotalRecordsCreated += r.Created
		summary.TotalRecordsUpdated += r.Updated
		summary.TotalRecordsFailed += r.Failed
		switch r.Status {
		case SyncStatusSuccess:
			summary.SuccessfulSyncs = r.Count
			summary.AverageDuration = decimal.NewFromFloat(r.Duration).Round(2).InexactFloat64()
		case SyncStatusFailed:
			summary.FailedSyncs = r.Count
		case SyncStatusPartial:
			summary.PartialSyncs = r.Count
		case SyncStatusPending:
			summary.PendingSyncs = r.Count
		}
	}
	summary.SuccessRate = percentage(summary.SuccessfulSyncs, summary.TotalSyncs)
	summary.OverallSuccessRate = percentage(summary.TotalRecordsCreated+summary.TotalRecordsUpdated, summary.TotalRecordsProcessed)
	return &summary, nil
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Div(decimal.NewFromInt(total)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}

func durationSeconds(start, end time.Time) int {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Seconds())
}

func mergeMetadata(existing datatypes.JSON, extra map[string]interface{}) (datatypes.JSON, error) {
	merged := map[string]interface{}{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &merged); err != nil {
			merged = map[string]interface{}{}
		}
	}
	for k, v := range extra {
		merged[k] = v
	}
	if len(merged) == 0 {
		return existing, nil
	}
	return toJSON(merged)
}
