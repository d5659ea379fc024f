package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/angelmondragon/betza-storefront/pkg/config"
	"github.com/angelmondragon/betza-storefront/pkg/db"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate|automigrate")
	dir := flag.String("dir", "", "migrations directory on disk (default: the set embedded in the binary; create writes to "+migrate.DefaultDir+")")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only and need no config
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.NewMigration(target, *name, time.Now())
		exitOn(err, "create migration")
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(migrate.Validate(source(*dir)), "validate migrations")
		fmt.Println("migrations are valid")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"driver": cfg.DB.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if *cmd == "automigrate" {
		// sqlite dev databases are built from the gorm models instead of goose
		exitOn(migrate.AutoMigrate(ctx, dbClient), "automigrate")
		return
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	runner, err := migrate.NewRunner(sqlDB, source(*dir), logg)
	requireResource(ctx, logg, "migration runner", err)

	switch *cmd {
	case "up":
		exitOn(runner.Up(ctx), "migrate up")
	case "down":
		exitOn(runner.Down(ctx), "migrate down")
	case "version":
		if *version == "" {
			exitOn(fmt.Errorf("missing -version"), "migrate to version")
		}
		exitOn(runner.To(ctx, *version), "migrate to version")
	case "status":
		rows, err := runner.Status(ctx)
		exitOn(err, "migration status")
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%d\t%-8s\t%s\n", row.Version, state, row.File)
		}
	default:
		exitOn(fmt.Errorf("unknown -cmd value %q", *cmd), "migrate")
	}
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Migrations()
	}
	return os.DirFS(dir)
}

func exitOn(err error, action string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", action, err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
