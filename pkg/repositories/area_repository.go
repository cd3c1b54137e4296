package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/database"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// AreaRepository persists knowledge areas. An area owns one MCP context by
// foreign key; deleting the context nulls the reference, never the area.
type AreaRepository interface {
	Create(ctx context.Context, area *models.Area) error
	Get(ctx context.Context, id string) (*models.Area, error)
	List(ctx context.Context) ([]*models.Area, error)
	Update(ctx context.Context, area *models.Area) error
	Delete(ctx context.Context, id string) error
	ClearContextReference(ctx context.Context, contextID string) error
}

type areaRepository struct {
	store *database.DocumentStore
}

// NewAreaRepository creates a repository over the document store.
func NewAreaRepository(store *database.DocumentStore) AreaRepository {
	return &areaRepository{store: store}
}

func (r *areaRepository) coll() *mongo.Collection {
	return r.store.Collection(database.CollectionAreas)
}

func (r *areaRepository) Create(ctx context.Context, area *models.Area) error {
	if _, err := r.coll().InsertOne(ctx, area); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Newf(apperrors.KindConflict, "area %q already exists", area.ID)
		}
		return fmt.Errorf("insert area: %w", err)
	}
	return nil
}

func (r *areaRepository) Get(ctx context.Context, id string) (*models.Area, error) {
	var area models.Area
	err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&area)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("area", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find area: %w", err)
	}
	return &area, nil
}

func (r *areaRepository) List(ctx context.Context) ([]*models.Area, error) {
	cursor, err := r.coll().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Area
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode areas: %w", err)
	}
	return out, nil
}

func (r *areaRepository) Update(ctx context.Context, area *models.Area) error {
	area.UpdatedAt = time.Now().UTC()
	res, err := r.coll().ReplaceOne(ctx, bson.M{"_id": area.ID}, area)
	if err != nil {
		return fmt.Errorf("update area: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("area", area.ID)
	}
	return nil
}

func (r *areaRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete area: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("area", id)
	}
	return nil
}

// ClearContextReference nulls the context_id on every area pointing at the
// deleted context.
func (r *areaRepository) ClearContextReference(ctx context.Context, contextID string) error {
	_, err := r.coll().UpdateMany(ctx,
		bson.M{"context_id": contextID},
		bson.M{"$set": bson.M{"context_id": "", "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("clear context reference: %w", err)
	}
	return nil
}
