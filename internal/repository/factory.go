package repository

import "context"

// Repositories bundles the metadata repositories of one store.
type Repositories struct {
	User      UserRepository
	Container ContainerRepository
	File      FileRepository
}

// DatabaseHealth is the liveness side of a store.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Close() error
}

// Migrator prepares a store's schema: SQL migrations or Mongo indexes.
type Migrator interface {
	Migrate(ctx context.Context) error

	// MigrationStatus describes the applied schema, one line per item.
	MigrationStatus(ctx context.Context) ([]string, error)
}

// Store is an opened metadata store: mongo, postgres or sqlite.
type Store interface {
	DatabaseHealth
	Migrator
	Repositories() *Repositories
}
