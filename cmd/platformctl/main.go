// platformctl runs one-off jobs against the unified backend: schema migration, demo seeding,
// a single integration sync and profile lookups.
//
// Usage (from the repository root):
//
//	go run ./cmd/platformctl migrate
//	go run ./cmd/platformctl seed
//	go run ./cmd/platformctl sync --connection-id demo_hr1_001 --type employees
//	go run ./cmd/platformctl profiles --email user@example.com
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/models"
	"github.com/mmdatafocus/unified_backend/platformsync"
	"github.com/mmdatafocus/unified_backend/unified"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "platformctl",
		Usage: "operate the unified backend from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "directory holding platforms.yaml",
				Value:   ".",
				EnvVars: []string{"PLATFORM_CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "create or update the integration, platform user and sync log tables",
				Action: migrate,
			},
			{
				Name:   "seed",
				Usage:  "load the demo integrations, users and sync logs",
				Action: seed,
			},
			{
				Name:  "sync",
				Usage: "run one sync for an integration and print its log",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "connection-id", Required: true, Usage: "unified connection id of the integration"},
					&cli.StringFlag{Name: "type", Required: true, Usage: "users, tickets, employees, companies, contacts or analytics"},
					&cli.StringFlag{Name: "source", Usage: "platform source stored on synced users (defaults to the connection's system)"},
				},
				Action: syncIntegration,
			},
			{
				Name:  "profiles",
				Usage: "print one unified profile, or every profile when --email is omitted",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email"},
				},
				Action: profiles,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		config.GetLogger().WithFields(logrus.Fields{"field": "platformctl"}).Error(err)
		os.Exit(1)
	}
}

func connect() {
	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadAggregator(c *cli.Context) (*unified.Aggregator, error) {
	settings, err := config.LoadPlatformSettings(c.String("config"))
	if err != nil {
		return nil, err
	}
	return unified.NewAggregator(unified.NewAccessor(unified.NewClient(settings)), settings), nil
}

func migrate(c *cli.Context) error {
	connect()
	fmt.Println("migrations applied")
	return nil
}

func seed(c *cli.Context) error {
	connect()
	result, err := models.SeedDemoData(c.Context)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func syncIntegration(c *cli.Context) error {
	aggregator, err := loadAggregator(c)
	if err != nil {
		return err
	}
	connect()
	if config.RedisConfigured() {
		config.ConnectRedisWithRetry()
	}

	connectionID := c.String("connection-id")
	integration, err := models.GetIntegrationByConnectionId(c.Context, connectionID)
	if err != nil {
		return err
	}
	if integration == nil {
		return fmt.Errorf("no integration for connection %q", connectionID)
	}

	syncLog, err := platformsync.NewWorker(aggregator).RunSync(c.Context, integration, c.String("type"), c.String("source"))
	if err != nil {
		return err
	}
	return printJSON(syncLog.Summary())
}

func profiles(c *cli.Context) error {
	aggregator, err := loadAggregator(c)
	if err != nil {
		return err
	}
	if email := c.String("email"); email != "" {
		bundle, err := aggregator.UserProfile(c.Context, email)
		if err != nil {
			return err
		}
		return printJSON(bundle)
	}
	all, err := aggregator.BuildAllProfiles(c.Context)
	if err != nil {
		return err
	}
	return printJSON(all)
}
