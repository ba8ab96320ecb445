package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"upforit/config"
	"upforit/internal/repository"
	"upforit/pkg/database"
	"upforit/pkg/logger"
)

const usage = `
upforit - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Apply all .up.sql migrations
  down        Apply all .down.sql migrations (drops every table)
  status      Show database connection status and table sizes
  seed-dev    Seed with development/test data

Flags:
  -migrations string   Path to migrations directory (default "migrations")
  -users int           Number of development users to seed (default 5)

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate seed-dev
  go run ./cmd/migrate down
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")
	userCount := flag.Int("users", 5, "Number of development users to seed")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	appLogger := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		appLogger.Errorf("Database connection failed: %v", err)
		os.Exit(1)
	}
	defer database.Close(pool)

	switch command {
	case "up":
		if err := database.ApplyRawMigrations(ctx, pool, *migrationsDir, database.Up); err != nil {
			appLogger.Errorf("Migration failed: %v", err)
			os.Exit(1)
		}
		appLogger.Infof("Migrations completed successfully")
	case "down":
		if err := database.ApplyRawMigrations(ctx, pool, *migrationsDir, database.Down); err != nil {
			appLogger.Errorf("Rollback failed: %v", err)
			os.Exit(1)
		}
		appLogger.Infof("Rollback completed successfully")
	case "status":
		showStatus(ctx, appLogger, pool)
	case "seed-dev":
		seedCfg := database.DefaultSeedConfig()
		seedCfg.TestUserCount = *userCount
		result, err := database.SeedDevelopment(ctx, repository.NewPostgresStore(pool), seedCfg)
		if err != nil {
			appLogger.Errorf("Seeding failed: %v", err)
			os.Exit(1)
		}
		appLogger.Infof("Seeded crew %q with %d users", result.Crew.Name, len(result.Users))
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func showStatus(ctx context.Context, log *logger.Logger, pool database.Pool) {
	if err := database.HealthCheck(ctx, pool); err != nil {
		log.Errorf("Health check failed: %v", err)
		os.Exit(1)
	}
	log.Infof("Health check: PASSED")

	tables := []string{"users", "push_tokens", "crews", "crew_members", "availability", "conversations", "messages", "read_states", "outbox_events"}
	for _, table := range tables {
		exists, err := database.TableExists(ctx, pool, table)
		if err != nil {
			log.Warnf("Error checking table %s: %v", table, err)
			continue
		}
		if !exists {
			log.Warnf("Table %-20s does not exist", table)
			continue
		}
		count, _ := database.GetTableCount(ctx, pool, table)
		log.Infof("Table %-20s exists (%d rows)", table, count)
	}
}
