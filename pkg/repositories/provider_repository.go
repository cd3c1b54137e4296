package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/database"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// ProviderRepository persists registered LLM providers.
type ProviderRepository interface {
	Create(ctx context.Context, p *models.Provider) error
	Get(ctx context.Context, id string) (*models.Provider, error)
	GetDefault(ctx context.Context) (*models.Provider, error)
	List(ctx context.Context) ([]*models.Provider, error)
	Delete(ctx context.Context, id string) error
}

type providerRepository struct {
	store *database.DocumentStore
}

// NewProviderRepository creates a repository over the document store.
func NewProviderRepository(store *database.DocumentStore) ProviderRepository {
	return &providerRepository{store: store}
}

func (r *providerRepository) coll() *mongo.Collection {
	return r.store.Collection(database.CollectionProviders)
}

func (r *providerRepository) Create(ctx context.Context, p *models.Provider) error {
	if _, err := r.coll().InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Newf(apperrors.KindConflict, "provider %q already exists", p.ID)
		}
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

func (r *providerRepository) Get(ctx context.Context, id string) (*models.Provider, error) {
	var p models.Provider
	err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("provider", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find provider: %w", err)
	}
	return &p, nil
}

func (r *providerRepository) GetDefault(ctx context.Context) (*models.Provider, error) {
	var p models.Provider
	err := r.coll().FindOne(ctx, bson.M{"default": true}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("provider", "default")
	}
	if err != nil {
		return nil, fmt.Errorf("find default provider: %w", err)
	}
	return &p, nil
}

func (r *providerRepository) List(ctx context.Context) ([]*models.Provider, error) {
	cursor, err := r.coll().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Provider
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode providers: %w", err)
	}
	return out, nil
}

func (r *providerRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("provider", id)
	}
	return nil
}
