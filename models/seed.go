package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmdatafocus/unified_backend/config"
	"gorm.io/gorm"
)

type demoUser struct {
	email          string
	source         string
	name           string
	phone          string
	status         string
	department     string
	jobTitle       string
	channel        string
	supportTickets int
	extra          map[string]interface{}
}

var demoIntegrations = []NewIntegration{
	{
		Name:                "Zendesk Support",
		PlatformType:        PlatformTypeTicketing,
		UnifiedConnectionId: "demo_zendesk_001",
		ConnectionMetadata: map[string]interface{}{
			"description": "Customer support platform for WhatsApp users",
			"api_version": "v2",
			"features":    []string{"tickets", "customers", "agents"},
		},
		ApiEndpoints: map[string]interface{}{
			"tickets":   "/ticketing/demo_zendesk_001/tickets",
			"customers": "/ticketing/demo_zendesk_001/customers",
			"agents":    "/ticketing/demo_zendesk_001/agents",
		},
	},
	demoHRIntegration("HR1 System", "demo_hr1_001", "HR system for some YouTube users"),
	demoHRIntegration("HR2 System", "demo_hr2_001", "HR system for other YouTube users"),
	demoHRIntegration("HR3 System", "demo_hr3_001", "HR system for other YouTube users"),
	{
		Name:                "YouTube Analytics",
		PlatformType:        PlatformTypePassthrough,
		UnifiedConnectionId: "demo_youtube_001",
		ConnectionMetadata: map[string]interface{}{
			"description": "YouTube content platform for all users",
			"api_version": "v3",
			"features":    []string{"users", "channels", "analytics"},
		},
		ApiEndpoints: map[string]interface{}{
			"users":     "/passthrough/demo_youtube_001/youtube/users",
			"channels":  "/passthrough/demo_youtube_001/youtube/channels",
			"analytics": "/passthrough/demo_youtube_001/youtube/analytics",
		},
	},
}

func demoHRIntegration(name, connectionId, description string) NewIntegration {
	return NewIntegration{
		Name:                name,
		PlatformType:        PlatformTypeHris,
		UnifiedConnectionId: connectionId,
		ConnectionMetadata: map[string]interface{}{
			"description": description,
			"api_version": "v1",
			"features":    []string{"employees", "departments", "roles"},
		},
		ApiEndpoints: map[string]interface{}{
			"employees":   fmt.Sprintf("/hris/%s/employee", connectionId),
			"departments": fmt.Sprintf("/hris/%s/department", connectionId),
			"roles":       fmt.Sprintf("/hris/%s/role", connectionId),
		},
	}
}

var demoUsers = []demoUser{
	{
		email: "john.doe@abc.com", source: PlatformSourceHR1, name: "John Doe", phone: "+1-555-0101",
		status: "ACTIVE", department: "Engineering", jobTitle: "Senior Software Developer", channel: "TechWithJohn",
		extra: map[string]interface{}{"employee_id": "EMP001", "hire_date": "2023-01-15", "manager": "Sarah Johnson", "location": "San Francisco, CA"},
	},
	{
		email: "alice.chen@abc.com", source: PlatformSourceHR1, name: "Alice Chen", phone: "+1-555-0102",
		status: "ACTIVE", department: "Engineering", jobTitle: "Frontend Developer", channel: "AliceCodes",
		extra: map[string]interface{}{"employee_id": "EMP002", "hire_date": "2023-03-20", "manager": "John Doe", "location": "San Francisco, CA"},
	},
	{
		email: "jane.smith@abc.com", source: PlatformSourceHR2, name: "Jane Smith", phone: "+1-555-0201",
		status: "ACTIVE", department: "Marketing", jobTitle: "Marketing Manager", channel: "MarketingWithJane",
		extra: map[string]interface{}{"employee_id": "EMP101", "hire_date": "2022-11-10", "manager": "Mike Wilson", "location": "New York, NY"},
	},
	{
		email: "david.brown@abc.com", source: PlatformSourceHR2, name: "David Brown", phone: "+1-555-0202",
		status: "ACTIVE", department: "Marketing", jobTitle: "Content Creator", channel: "DavidCreates",
		extra: map[string]interface{}{"employee_id": "EMP102", "hire_date": "2023-06-15", "manager": "Jane Smith", "location": "New York, NY"},
	},
	{
		email: "emma.wilson@abc.com", source: PlatformSourceHR3, name: "Emma Wilson", phone: "+1-555-0301",
		status: "ACTIVE", department: "Sales", jobTitle: "Sales Director", channel: "SalesWithEmma",
		extra: map[string]interface{}{"employee_id": "EMP201", "hire_date": "2022-08-05", "manager": "CEO", "location": "Chicago, IL"},
	},
	{
		email: "bob.wilson@abc.com", source: PlatformSourceZendesk, name: "Bob Wilson", phone: "+1-555-0401",
		channel: "BobTechSupport", supportTickets: 5,
		extra: map[string]interface{}{"customer_id": "CUST001", "organization": "ABC Corp", "tags": []string{"enterprise", "premium"}, "tickets_count": 5},
	},
	{
		email: "sarah.johnson@abc.com", source: PlatformSourceZendesk, name: "Sarah Johnson", phone: "+1-555-0402",
		channel: "SarahTech", supportTickets: 3,
		extra: map[string]interface{}{"customer_id": "CUST002", "organization": "XYZ Inc", "tags": []string{"sme", "standard"}, "tickets_count": 3},
	},
}

type SeedResult struct {
	Integrations  int64 `json:"integrations"`
	PlatformUsers int64 `json:"platform_users"`
	SyncLogs      int64 `json:"sync_logs"`
}

// SeedDemoData loads the demo integrations, users and sync logs. Running it again changes nothing.
func SeedDemoData(ctx context.Context) (*SeedResult, error) {
	db := config.GetDB().WithContext(ctx)

	var first *Integration
	for _, input := range demoIntegrations {
		input.IsDemoData = true
		integration, err := GetIntegrationByConnectionId(ctx, input.UnifiedConnectionId)
		if err != nil {
			return nil, err
		}
		if integration == nil {
			if integration, err = CreateIntegration(ctx, &input); err != nil {
				return nil, fmt.Errorf("seed integration %s: %w", input.UnifiedConnectionId, err)
			}
		}
		if first == nil {
			first = integration
		}
	}

	for _, du := range demoUsers {
		if err := seedDemoUser(ctx, db, du); err != nil {
			return nil, err
		}
	}

	if first != nil {
		if err := seedDemoSyncLogs(db, first.ID); err != nil {
			return nil, err
		}
	}

	var result SeedResult
	db.Model(&Integration{}).Count(&result.Integrations)
	db.Model(&PlatformUser{}).Count(&result.PlatformUsers)
	db.Model(&DataSyncLog{}).Count(&result.SyncLogs)
	return &result, nil
}

func seedDemoUser(ctx context.Context, db *gorm.DB, du demoUser) error {
	record := map[string]interface{}{
		"name":       du.name,
		"telephones": []map[string]string{{"telephone": du.phone}},
	}
	if du.status != "" {
		record["employment_status"] = du.status
		record["department"] = du.department
		record["job_title"] = du.jobTitle
	}
	for k, v := range du.extra {
		record[k] = v
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}

	user, _, err := FindOrCreateFromPlatform(ctx, du.email, du.source, raw, nil)
	if err != nil {
		return fmt.Errorf("seed user %s: %w", du.email, err)
	}
	if err := db.Model(user).UpdateColumn("is_demo_user", true).Error; err != nil {
		return err
	}

	hrSystems := []string{}
	if user.HasHRData() {
		hrSystems = append(hrSystems, du.source)
	}
	profile := map[string]interface{}{
		"email":             du.email,
		"name":              du.name,
		"phone":             du.phone,
		"employment_status": nullable(du.status),
		"department":        nullable(du.department),
		"job_title":         nullable(du.jobTitle),
		"hr_systems":        hrSystems,
		"support_tickets":   du.supportTickets,
		"youtube_channel":   du.channel,
	}
	return user.UpdateUnifiedProfile(ctx, profile)
}

func seedDemoSyncLogs(db *gorm.DB, integrationId uint) error {
	var existing int64
	if err := db.Model(&DataSyncLog{}).Where("integration_id = ?", integrationId).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	now := time.Now()
	seeds := []struct {
		syncType string
		records  int
		ago      time.Duration
		seconds  int
		apiCalls int
	}{
		{SyncTypeUsers, 8, time.Hour, 120, 5},
		{SyncTypeTickets, 2, 2 * time.Hour, 60, 3},
	}
	for _, s := range seeds {
		startedAt := now.Add(-s.ago)
		completedAt := startedAt.Add(time.Duration(s.seconds) * time.Second)
		meta, err := toJSON(map[string]interface{}{
			"source":           "demo_data",
			"duration_minutes": s.seconds / 60,
			"api_calls":        s.apiCalls,
		})
		if err != nil {
			return err
		}
		syncLog := DataSyncLog{
			IntegrationId:    integrationId,
			SyncType:         s.syncType,
			Status:           SyncStatusSuccess,
			RecordsProcessed: s.records,
			RecordsCreated:   s.records,
			SyncMetadata:     meta,
			StartedAt:        startedAt,
			CompletedAt:      &completedAt,
			DurationSeconds:  s.seconds,
		}
		if err := db.Create(&syncLog).Error; err != nil {
			return err
		}
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
