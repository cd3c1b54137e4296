// Package repositories provides data access over the document store.
// Driver-specific failures are translated into apperrors kinds here, at
// the earliest layer.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/database"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// ConnectionRepository persists registered target-database connections.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.Connection) error
	Get(ctx context.Context, id string) (*models.Connection, error)
	List(ctx context.Context) ([]*models.Connection, error)
	Update(ctx context.Context, conn *models.Connection) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus, checkedAt time.Time) error
}

type connectionRepository struct {
	store *database.DocumentStore
}

// NewConnectionRepository creates a repository over the document store.
func NewConnectionRepository(store *database.DocumentStore) ConnectionRepository {
	return &connectionRepository{store: store}
}

func (r *connectionRepository) coll() *mongo.Collection {
	return r.store.Collection(database.CollectionConnections)
}

func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if _, err := r.coll().InsertOne(ctx, conn); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Newf(apperrors.KindConflict, "connection %q already exists", conn.ID)
		}
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) Get(ctx context.Context, id string) (*models.Connection, error) {
	var conn models.Connection
	err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&conn)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("connection", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	return &conn, nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*models.Connection, error) {
	cursor, err := r.coll().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Connection
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}
	return out, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *models.Connection) error {
	conn.UpdatedAt = time.Now().UTC()
	res, err := r.coll().ReplaceOne(ctx, bson.M{"_id": conn.ID}, conn)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("connection", conn.ID)
	}
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("connection", id)
	}
	return nil
}

func (r *connectionRepository) UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus, checkedAt time.Time) error {
	res, err := r.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":       status,
		"last_checked": checkedAt,
		"updated_at":   time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("update connection status: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("connection", id)
	}
	return nil
}
