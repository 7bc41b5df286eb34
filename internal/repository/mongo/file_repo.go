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

// fileRepository implements repository.FileRepository for MongoDB.
type fileRepository struct {
	coll *mongo.Collection
}

// NewFileRepository creates a new MongoDB file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{coll: db.collection(filesCollection)}
}

// Create inserts a new file record.
func (r *fileRepository) Create(ctx context.Context, f *domain.File) error {
	if _, err := r.coll.InsertOne(ctx, newFileDoc(f)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: file %s", repository.ErrAlreadyExists, f.ID)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetByID retrieves a file by ID.
func (r *fileRepository) GetByID(ctx context.Context, id string) (*domain.File, error) {
	var doc fileDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return doc.toDomain(), nil
}

// ListByContainer returns all files of a container.
func (r *fileRepository) ListByContainer(ctx context.Context, containerID string) ([]*domain.File, error) {
	return r.find(ctx, bson.M{"container_id": containerID})
}

// ListByUser returns all files owned by a user.
func (r *fileRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.File, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

// ListPendingBefore returns pending files created before t.
func (r *fileRepository) ListPendingBefore(ctx context.Context, t time.Time) ([]*domain.File, error) {
	return r.find(ctx, bson.M{
		"status":     string(domain.StatusPending),
		"created_at": bson.M{"$lt": t.UTC()},
	})
}

// SetStatus moves a file between pending and active.
func (r *fileRepository) SetStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return false, fmt.Errorf("failed to set file status: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// UsageByContainer sums size and count over the container's files.
func (r *fileRepository) UsageByContainer(ctx context.Context, containerID string) (int64, int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"container_id": containerID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"bytes": bson.M{"$sum": "$size"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute usage: %w", err)
	}

	var rows []struct {
		Bytes int64 `bson:"bytes"`
		Count int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, fmt.Errorf("failed to decode usage: %w", err)
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Bytes, rows[0].Count, nil
}

// Delete deletes a file by ID.
func (r *fileRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *fileRepository) find(ctx context.Context, filter bson.M) ([]*domain.File, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var docs []fileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}

	out := make([]*domain.File, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
