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

// SchemaRepository persists discovered schemas. The store upserts by
// connection_id, so across concurrent jobs for the same connection the
// last writer wins.
type SchemaRepository interface {
	GetByConnection(ctx context.Context, connectionID string) (*models.Schema, error)
	Upsert(ctx context.Context, schema *models.Schema) error
	SetVectorID(ctx context.Context, connectionID, vectorID string) error
	SetVectorizationError(ctx context.Context, connectionID, message string) error
	Delete(ctx context.Context, connectionID string) error
}

type schemaRepository struct {
	store *database.DocumentStore
}

// NewSchemaRepository creates a repository over the document store.
func NewSchemaRepository(store *database.DocumentStore) SchemaRepository {
	return &schemaRepository{store: store}
}

func (r *schemaRepository) coll() *mongo.Collection {
	return r.store.Collection(database.CollectionSchemas)
}

func (r *schemaRepository) GetByConnection(ctx context.Context, connectionID string) (*models.Schema, error) {
	var schema models.Schema
	err := r.coll().FindOne(ctx, bson.M{"connection_id": connectionID}).Decode(&schema)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("schema", connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("find schema: %w", err)
	}
	return &schema, nil
}

func (r *schemaRepository) Upsert(ctx context.Context, schema *models.Schema) error {
	filter := bson.M{"connection_id": schema.ConnectionID}
	update := bson.M{"$set": bson.M{
		"connection_id":       schema.ConnectionID,
		"name":                schema.Name,
		"db_type":             schema.DBType,
		"version":             schema.Version,
		"status":              schema.Status,
		"discovery_date":      schema.DiscoveryDate,
		"vector_id":           schema.VectorID,
		"error":               schema.Error,
		"vectorization_error": schema.VectorizationError,
		"tables":              schema.Tables,
	}, "$setOnInsert": bson.M{"_id": schema.ID}}

	_, err := r.coll().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert schema: %w", err)
	}
	return nil
}

func (r *schemaRepository) SetVectorID(ctx context.Context, connectionID, vectorID string) error {
	return r.setField(ctx, connectionID, "vector_id", vectorID)
}

func (r *schemaRepository) SetVectorizationError(ctx context.Context, connectionID, message string) error {
	return r.setField(ctx, connectionID, "vectorization_error", message)
}

func (r *schemaRepository) setField(ctx context.Context, connectionID, field string, value any) error {
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"connection_id": connectionID},
		bson.M{"$set": bson.M{field: value, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("update schema %s: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("schema", connectionID)
	}
	return nil
}

func (r *schemaRepository) Delete(ctx context.Context, connectionID string) error {
	res, err := r.coll().DeleteOne(ctx, bson.M{"connection_id": connectionID})
	if err != nil {
		return fmt.Errorf("delete schema: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("schema", connectionID)
	}
	return nil
}
