package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/jewelpos-backend/pkg/config"
	"github.com/angelmondragon/jewelpos-backend/pkg/db"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/migrate"
)

type dbCommand func(ctx context.Context, runner *migrate.Runner) error

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate|automigrate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": *dir})

	// create and validate only touch the filesystem
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("failed to create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed", err)
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
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	// The goose files rely on postgres enums and triggers; sqlite tills build
	// their schema from the models.
	if cfg.DB.IsSQLite() {
		if *cmd != "automigrate" && *cmd != "up" {
			fail("sqlite only supports -cmd=automigrate", nil)
		}
		dbClient, err := db.New(ctx, cfg.DB, logg)
		requireResource(ctx, logg, "database", err)
		defer dbClient.Close()
		logg.Info(ctx, "auto-migrating sqlite schema")
		requireResource(ctx, logg, "sqlite automigrate", dbClient.DB().WithContext(ctx).AutoMigrate(models.All()...))
		return
	}

	commands := map[string]dbCommand{
		"up":   func(ctx context.Context, runner *migrate.Runner) error { return runner.Up(ctx) },
		"down": func(ctx context.Context, runner *migrate.Runner) error { return runner.Down(ctx) },
		"status": func(ctx context.Context, runner *migrate.Runner) error {
			statuses, err := runner.Status(ctx)
			if err != nil {
				return err
			}
			for _, st := range statuses {
				state := "pending"
				if st.Applied {
					state = "applied"
				}
				fmt.Printf("%d\t%-8s %s\n", st.Version, state, st.Path)
			}
			return nil
		},
		"version": func(ctx context.Context, runner *migrate.Runner) error {
			if *version == "" {
				return fmt.Errorf("missing -version for version command")
			}
			return runner.ToVersion(ctx, *version)
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		fail("unknown -cmd value: "+*cmd, nil)
	}

	sqlDB, err := migrate.OpenPostgres(ctx, cfg.DB.DSN)
	requireResource(ctx, logg, "database", err)
	defer sqlDB.Close()
	runner, err := migrate.NewRunner(sqlDB, *dir, logg)
	requireResource(ctx, logg, "goose provider", err)

	if err := run(ctx, runner); err != nil {
		logg.Error(logg.WithField(ctx, "error_dump", pkgerrors.Dump(err)), "goose "+*cmd+" failed", err)
		fail("goose "+*cmd+" failed", err)
	}
}

func fail(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
