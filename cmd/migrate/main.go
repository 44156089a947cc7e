// Migration CLI for the AppForge postgres database.
//
// Usage:
//
//	migrate up             apply all pending migrations
//	migrate rollback       revert the most recent migration
//	migrate status         print the current version
//	migrate force <ver>    force the version after a failed migration
package main

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"appforge/internal/config"
	"appforge/internal/database"
	"appforge/internal/logging"
)

func main() {
	cfg := config.Load()
	logging.Init()
	defer logging.Sync()
	log := logging.L().Named("migrate-cli")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; sqlite deployments migrate automatically at startup")
	}

	runner, err := database.NewRunner(cfg.DatabaseURL, cfg.MigrationsPath)
	if err != nil {
		log.Fatal("migration setup failed", zap.Error(err))
	}
	defer runner.Close()

	switch os.Args[1] {
	case "up":
		err = runner.Up()
	case "rollback", "down":
		err = runner.Rollback()
	case "status":
		var status database.Status
		status, err = runner.Status()
		if err == nil {
			fmt.Printf("version=%d dirty=%v applied=%v\n", status.Version, status.Dirty, status.Applied)
		}
	case "force":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		var version int
		version, err = strconv.Atoi(os.Args[2])
		if err == nil {
			err = runner.Force(version)
		}
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal("migration command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate <up|rollback|status|force <version>>")
}
