package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mratomo/backend-aiss-sub000/pkg/database"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// HistoryFilter narrows query-history listings.
type HistoryFilter struct {
	UserID       string
	ConnectionID string
	Limit        int64
}

// QueryHistoryRepository persists answered queries.
type QueryHistoryRepository interface {
	Record(ctx context.Context, rec *models.QueryRecord) error
	List(ctx context.Context, filter HistoryFilter) ([]*models.QueryRecord, error)
}

type queryHistoryRepository struct {
	store *database.DocumentStore
}

// NewQueryHistoryRepository creates a repository over the document store.
func NewQueryHistoryRepository(store *database.DocumentStore) QueryHistoryRepository {
	return &queryHistoryRepository{store: store}
}

func (r *queryHistoryRepository) coll() *mongo.Collection {
	return r.store.Collection(database.CollectionQueryHistory)
}

func (r *queryHistoryRepository) Record(ctx context.Context, rec *models.QueryRecord) error {
	if _, err := r.coll().InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

func (r *queryHistoryRepository) List(ctx context.Context, filter HistoryFilter) ([]*models.QueryRecord, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.ConnectionID != "" {
		query["connection_id"] = filter.ConnectionID
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cursor, err := r.coll().Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.QueryRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode query history: %w", err)
	}
	return out, nil
}
