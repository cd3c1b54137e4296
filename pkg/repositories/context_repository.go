package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/database"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// ContextRepository persists MCP contexts so the runtime registry survives
// restarts. The in-memory registry remains the activation source of truth.
type ContextRepository interface {
	Save(ctx context.Context, c *models.Context) error
	List(ctx context.Context) ([]*models.Context, error)
	Delete(ctx context.Context, id string) error
}

type contextRepository struct {
	store *database.DocumentStore
}

// NewContextRepository creates a repository over the document store.
func NewContextRepository(store *database.DocumentStore) ContextRepository {
	return &contextRepository{store: store}
}

func (r *contextRepository) coll() *mongo.Collection {
	return r.store.Collection(database.CollectionContexts)
}

func (r *contextRepository) Save(ctx context.Context, c *models.Context) error {
	_, err := r.coll().ReplaceOne(ctx, bson.M{"_id": c.ID}, c, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

func (r *contextRepository) List(ctx context.Context) ([]*models.Context, error) {
	cursor, err := r.coll().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Context
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode contexts: %w", err)
	}
	return out, nil
}

func (r *contextRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("context", id)
	}
	return nil
}
