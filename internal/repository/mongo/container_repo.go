package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// containerRepository implements repository.ContainerRepository for MongoDB.
type containerRepository struct {
	coll *mongo.Collection
}

// NewContainerRepository creates a new MongoDB container repository.
func NewContainerRepository(db *DB) repository.ContainerRepository {
	return &containerRepository{coll: db.collection(containersCollection)}
}

// Create inserts a new container.
func (r *containerRepository) Create(ctx context.Context, c *domain.Container) error {
	if _, err := r.coll.InsertOne(ctx, newContainerDoc(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: container %s", repository.ErrAlreadyExists, c.ID)
		}
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

// GetByID retrieves a container by ID.
func (r *containerRepository) GetByID(ctx context.Context, id string) (*domain.Container, error) {
	var doc containerDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get container: %w", err)
	}
	return doc.toDomain(), nil
}

// ListByUser returns all containers owned by a user.
func (r *containerRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Container, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

// ListPendingBefore returns pending containers created before t.
func (r *containerRepository) ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.Container, error) {
	return r.find(ctx, bson.M{
		"status":     string(domain.StatusPending),
		"created_at": bson.M{"$lt": t.UTC()},
	})
}

// SetStatus moves a container between pending and active.
func (r *containerRepository) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return false, fmt.Errorf("failed to set container status: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// Delete deletes a container by ID.
func (r *containerRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete container: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *containerRepository) find(ctx context.Context, filter bson.M) ([]*domain.Container, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var docs []containerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode containers: %w", err)
	}

	out := make([]*domain.Container, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
