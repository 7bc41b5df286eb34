// Package store opens the metadata store selected by configuration.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/repository"
	"github.com/prn-tf/owl-middleware/internal/repository/mongo"
	"github.com/prn-tf/owl-middleware/internal/repository/postgres"
	"github.com/prn-tf/owl-middleware/internal/repository/sqlite"
)

// Open connects to the configured driver. The caller owns Close.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (repository.Store, error) {
	logger = logger.With().Str("component", "store").Str("driver", cfg.Driver).Logger()

	// Each branch returns on error so a typed nil never reaches the interface.
	switch cfg.Driver {
	case "mongo", "":
		db, err := mongo.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.Config{
			Path:            cfg.Path,
			MaxOpenConns:    1,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			JournalMode:     cfg.JournalMode,
			BusyTimeout:     cfg.BusyTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
