package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PlatformSourceZendesk  = "zendesk"
	PlatformSourceHR1      = "hr1"
	PlatformSourceHR2      = "hr2"
	PlatformSourceHR3      = "hr3"
	PlatformSourceYouTube  = "youtube"
	PlatformSourceHubSpot  = "hubspot"
	PlatformSourceFirefish = "firefish"
)

var PlatformSources = []string{
	PlatformSourceZendesk,
	PlatformSourceHR1,
	PlatformSourceHR2,
	PlatformSourceHR3,
	PlatformSourceYouTube,
	PlatformSourceHubSpot,
	PlatformSourceFirefish,
}

// DefaultPhoneRegion parses national phone numbers when the caller has no configured region.
const DefaultPhoneRegion = "US"

const activeWindow = 7 * 24 * time.Hour

type PlatformUser struct {
	ID               uint           `gorm:"primary_key" json:"id"`
	Email            string         `gorm:"size:255;not null;uniqueIndex:idx_platform_users_email_source,priority:1" json:"email" validate:"required,email"`
	Name             string         `gorm:"size:255" json:"name"`
	Phone            string         `gorm:"size:64" json:"phone"`
	PlatformSource   string         `gorm:"size:30;not null;uniqueIndex:idx_platform_users_email_source,priority:2;index" json:"platform_source" validate:"required,oneof=zendesk hr1 hr2 hr3 youtube hubspot firefish"`
	UnifiedUserId    string         `gorm:"size:128;index" json:"unified_user_id"`
	PlatformData     datatypes.JSON `json:"platform_data"`
	UnifiedProfile   datatypes.JSON `json:"unified_profile"`
	EmploymentStatus string         `gorm:"size:50" json:"employment_status"`
	Department       string         `gorm:"size:255" json:"department"`
	JobTitle         string         `gorm:"size:255" json:"job_title"`
	IsDemoUser       bool           `gorm:"not null;default:false;index" json:"is_demo_user"`
	LastSeenAt       *time.Time     `json:"last_seen_at"`
	IntegrationId    *uint          `gorm:"index" json:"integration_id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type PlatformUserFilter struct {
	Source   string
	Email    string
	DemoOnly bool
	Limit    int
}

type EmploymentInfo struct {
	Status     string `json:"status"`
	Department string `json:"department"`
	JobTitle   string `json:"job_title"`
}

func (u *PlatformUser) BeforeSave(tx *gorm.DB) error {
	u.Email = utils.NormalizeEmail(u.Email)
	return validateModel(u)
}

// FullName falls back to a title-cased email local part.
func (u *PlatformUser) FullName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return utils.TitleizeLocalPart(u.Email)
}

func (u *PlatformUser) AvatarURL() string {
	if img := stringField(u.platformFields(), "image_url"); img != "" {
		return img
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(u.FullName()) + "&background=random&size=100"
}

func (u *PlatformUser) HasHRData() bool {
	switch u.PlatformSource {
	case PlatformSourceHR1, PlatformSourceHR2, PlatformSourceHR3:
		return true
	}
	return false
}

func (u *PlatformUser) HasSupportData() bool {
	return u.PlatformSource == PlatformSourceZendesk
}

func (u *PlatformUser) EmploymentInfo() *EmploymentInfo {
	if !u.HasHRData() {
		return nil
	}
	return &EmploymentInfo{
		Status:     u.EmploymentStatus,
		Department: u.Department,
		JobTitle:   u.JobTitle,
	}
}

func (u *PlatformUser) SupportTicketsCount() int {
	if !u.HasSupportData() {
		return 0
	}
	var n int
	if raw, ok := u.platformFields()["tickets_count"]; ok {
		_ = json.Unmarshal(raw, &n)
	}
	return n
}

func (u *PlatformUser) LastActivity() time.Time {
	if u.LastSeenAt != nil {
		return *u.LastSeenAt
	}
	return u.UpdatedAt
}

func (u *PlatformUser) IsActive() bool {
	return u.LastActivity().After(time.Now().Add(-activeWindow))
}

func (u *PlatformUser) platformFields() map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	if len(u.PlatformData) > 0 {
		_ = json.Unmarshal(u.PlatformData, &fields)
	}
	return fields
}

// FindOrCreateFromPlatform upserts the user keyed by (email, source) and overwrites its attributes from record.
// Calling it twice with the same input leaves one row with identical attributes. The bool reports a create.
func FindOrCreateFromPlatform(ctx context.Context, email, source string, record json.RawMessage, integrationId *uint) (*PlatformUser, bool, error) {
	return FindOrCreateFromPlatformInRegion(ctx, DefaultPhoneRegion, email, source, record, integrationId)
}

// FindOrCreateFromPlatformInRegion is FindOrCreateFromPlatform with national phone numbers read in phoneRegion.
func FindOrCreateFromPlatformInRegion(ctx context.Context, phoneRegion, email, source string, record json.RawMessage, integrationId *uint) (*PlatformUser, bool, error) {
	if phoneRegion == "" {
		phoneRegion = DefaultPhoneRegion
	}
	email = utils.NormalizeEmail(email)
	fields := map[string]json.RawMessage{}
	if len(record) > 0 {
		if err := json.Unmarshal(record, &fields); err != nil {
			return nil, false, fmt.Errorf("platform record for %s is not an object: %w", email, err)
		}
	}

	now := time.Now()
	user := PlatformUser{
		Email:            email,
		PlatformSource:   source,
		Name:             stringField(fields, "name"),
		Phone:            utils.FormatPhoneE164(recordPhone(fields), phoneRegion),
		EmploymentStatus: stringField(fields, "employment_status"),
		Department:       stringField(fields, "department"),
		JobTitle:         stringField(fields, "job_title"),
		UnifiedUserId:    stringField(fields, "id"),
		LastSeenAt:       &now,
		IntegrationId:    integrationId,
	}
	if len(record) > 0 {
		user.PlatformData = datatypes.JSON(record)
	}

	db := config.GetDB().WithContext(ctx)

	var existing int64
	if err := db.Model(&PlatformUser{}).
		Where("email = ? AND platform_source = ?", email, source).
		Count(&existing).Error; err != nil {
		return nil, false, err
	}

	assign := []string{"name", "phone", "employment_status", "department", "job_title", "unified_user_id", "platform_data", "last_seen_at", "updated_at"}
	if integrationId != nil {
		assign = append(assign, "integration_id")
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}, {Name: "platform_source"}},
		DoUpdates: clause.AssignmentColumns(assign),
	}).Create(&user).Error
	if err != nil {
		return nil, false, err
	}

	var stored PlatformUser
	if err := db.Where("email = ? AND platform_source = ?", email, source).Take(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, existing == 0, nil
}

func GetPlatformUser(ctx context.Context, email, source string) (*PlatformUser, error) {
	db := config.GetDB()
	var user PlatformUser
	err := db.WithContext(ctx).Where("email = ? AND platform_source = ?", utils.NormalizeEmail(email), source).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func ListPlatformUsers(ctx context.Context, filter PlatformUserFilter) ([]PlatformUser, error) {
	db := config.GetDB().WithContext(ctx)
	if filter.Source != "" {
		db = db.Where("platform_source = ?", filter.Source)
	}
	if filter.Email != "" {
		db = db.Where("email = ?", utils.NormalizeEmail(filter.Email))
	}
	if filter.DemoOnly {
		db = db.Where("is_demo_user = ?", true)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var users []PlatformUser
	if err := db.Order("email, platform_source").Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUnifiedProfile stores profile and bumps last-seen.
func (u *PlatformUser) UpdateUnifiedProfile(ctx context.Context, profile interface{}) error {
	data, err := toJSON(profile)
	if err != nil {
		return err
	}
	now := time.Now()
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(u).Updates(map[string]interface{}{
		"unified_profile": data,
		"last_seen_at":    now,
	}).Error; err != nil {
		return err
	}
	u.UnifiedProfile = data
	u.LastSeenAt = &now
	return nil
}

// MergePlatformData overlays extra on the stored payload; keys in extra win.
func (u *PlatformUser) MergePlatformData(ctx context.Context, extra map[string]interface{}) error {
	merged, err := mergeMetadata(u.PlatformData, extra)
	if err != nil {
		return err
	}
	now := time.Now()
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(u).Updates(map[string]interface{}{
		"platform_data": merged,
		"last_seen_at":  now,
	}).Error; err != nil {
		return err
	}
	u.PlatformData = merged
	u.LastSeenAt = &now
	return nil
}

// recordPhone prefers telephones[0].telephone and falls back to a flat phone field.
func recordPhone(fields map[string]json.RawMessage) string {
	if raw, ok := fields["telephones"]; ok {
		var phones []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &phones); err == nil && len(phones) > 0 {
			if p := stringField(phones[0], "telephone"); p != "" {
				return p
			}
		}
	}
	return stringField(fields, "phone")
}

// stringField returns fields[key] when it holds a JSON string or number, "" otherwise.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
