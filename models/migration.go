package models

import (
	"log"

	"github.com/mmdatafocus/unified_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Integration{},
		&PlatformUser{},
		&DataSyncLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
