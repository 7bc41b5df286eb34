// Package main is the entry point for the Owl Middleware migration tool.
// It applies SQL migrations (postgres, sqlite) or creates Mongo indexes.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prn-tf/owl-middleware/internal/app"
	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/repository"
	"github.com/prn-tf/owl-middleware/internal/repository/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("Owl Middleware Migration Tool\n")
		fmt.Printf("Version: %s\n", app.Version)
		fmt.Printf("Build Time: %s\n", app.BuildTime)
		fmt.Printf("Git Commit: %s\n", app.GitCommit)

	case "up":
		exitOnError(withStore(func(ctx context.Context, st repository.Store) error {
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("Migrations applied")
			return nil
		}))

	case "status":
		exitOnError(withStore(func(ctx context.Context, st repository.Store) error {
			lines, err := st.MigrationStatus(ctx)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Println("No migrations applied")
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		}))

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func withStore(fn func(ctx context.Context, st repository.Store) error) error {
	cfg, err := config.Load(os.Getenv("OWL_CONFIG"))
	if err != nil {
		return err
	}
	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stderr"
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info().Str("driver", cfg.Database.Driver).Msg("Connected to metadata store")
	return fn(ctx, st)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Owl Middleware Migration Tool

Usage:
  owl-migrate <command>

Commands:
  up          Apply pending migrations (Mongo: create indexes)
  status      Show applied migrations
  version     Print version information
  help        Show this help message

Environment Variables:
  OWL_CONFIG            Path to the YAML config file (optional)
  OWL_DATABASE_DRIVER   mongo, postgres or sqlite

Examples:
  OWL_DATABASE_DRIVER=sqlite owl-migrate up
  owl-migrate status`)
}
