package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/pullstream-backend/pkg/config"
	"github.com/angelmondragon/pullstream-backend/pkg/db"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	"github.com/angelmondragon/pullstream-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the set embedded in the binary")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	ctx := context.Background()

	// create and validate only touch the filesystem
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name, time.Now())
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(migrate.Source(*dir)); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if dbClient.IsSQLite() {
		if *cmd != "up" {
			exitf("sqlite driver only supports -cmd=up")
		}
		requireResource(ctx, logg, "sqlite schema", migrate.ApplySQLiteSchema(dbClient.DB()))
		logg.Info(ctx, "sqlite schema applied")
		return
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	migrator, err := migrate.New(sqlDB, migrate.Source(*dir))
	requireResource(ctx, logg, "goose provider", err)

	switch *cmd {
	case "up":
		applied, err := migrator.Up(ctx)
		if err != nil {
			exitf("%v", err)
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		version, err := migrator.Down(ctx)
		if err != nil {
			exitf("%v", err)
		}
		logg.Info(logg.WithField(ctx, "rolled_back", version), "migration rolled back")
	case "status":
		rows, err := migrator.Status(ctx)
		if err != nil {
			exitf("%v", err)
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %d %s\n", state, row.Version, row.Path)
		}
	case "version":
		if *version == "" {
			exitf("missing -version for version command")
		}
		if err := migrator.MigrateTo(ctx, *version); err != nil {
			exitf("%v", err)
		}
	default:
		exitf("unknown -cmd value: %s", *cmd)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
