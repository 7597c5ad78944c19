package models_test

import (
	"testing"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/models"
)

func openTestDB(t *testing.T) {
	t.Helper()
	conn, err := config.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	models.MigrateTable()
}
