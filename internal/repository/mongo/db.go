// Package mongo provides the MongoDB metadata store, the default driver.
// Each entity lives in its own collection keyed by its natural id in _id.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// Collection names.
const (
	usersCollection      = "users"
	containersCollection = "containers"
	filesCollection      = "files"
)

// DB wraps a MongoDB client bound to one database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// NewDB connects to MongoDB and verifies the connection.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.MaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxOpenConns))
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info().
		Str("database", cfg.MongoDatabase).
		Msg("connected to MongoDB")

	return &DB{
		client: client,
		db:     client.Database(cfg.MongoDatabase),
		logger: logger,
	}, nil
}

// Close disconnects the client.
func (db *DB) Close() error {
	db.logger.Info().Msg("closing MongoDB connection")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, readpref.Primary())
}

// indexes lists the secondary indexes each collection needs.
// Sparse unique indexes let tg_id and email be absent on some users.
func indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "tg_id", Value: 1}},
				Options: options.Index().SetName("uniq_tg_id").SetUnique(true).SetSparse(true),
			},
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("uniq_email").SetUnique(true).SetSparse(true),
			},
		},
		containersCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("idx_user_id"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
				Options: options.Index().SetName("idx_status_created"),
			},
		},
		filesCollection: {
			{
				Keys:    bson.D{{Key: "container_id", Value: 1}},
				Options: options.Index().SetName("idx_container_id"),
			},
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("idx_user_id"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
				Options: options.Index().SetName("idx_status_created"),
			},
		},
	}
}

// Migrate creates the collections' indexes. Creating an existing index is a no-op.
func (db *DB) Migrate(ctx context.Context) error {
	for coll, models := range indexes() {
		names, err := db.db.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
		db.logger.Info().Str("collection", coll).Strs("indexes", names).Msg("indexes ensured")
	}
	return nil
}

// MigrationStatus lists the indexes present on each collection.
func (db *DB) MigrationStatus(ctx context.Context) ([]string, error) {
	var out []string
	for _, coll := range []string{usersCollection, containersCollection, filesCollection} {
		cursor, err := db.db.Collection(coll).Indexes().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list indexes on %s: %w", coll, err)
		}

		var specs []bson.M
		if err := cursor.All(ctx, &specs); err != nil {
			return nil, fmt.Errorf("failed to read indexes on %s: %w", coll, err)
		}
		for _, spec := range specs {
			out = append(out, fmt.Sprintf("%s.%v", coll, spec["name"]))
		}
	}
	return out, nil
}

// Repositories builds the MongoDB repositories over db.
func (db *DB) Repositories() *repository.Repositories {
	return &repository.Repositories{
		User:      NewUserRepository(db),
		Container: NewContainerRepository(db),
		File:      NewFileRepository(db),
	}
}

var _ repository.Store = (*DB)(nil)

func (db *DB) collection(name string) *mongo.Collection {
	return db.db.Collection(name)
}
