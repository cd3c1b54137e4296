package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/llm"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
)

// ProviderService registers LLM providers. API-key shape is validated at
// registration; the key itself never appears in responses or logs.
type ProviderService interface {
	Create(ctx context.Context, provider *models.Provider) (*models.Provider, error)
	Get(ctx context.Context, id string) (*models.Provider, error)
	List(ctx context.Context) ([]*models.Provider, error)
	Delete(ctx context.Context, id string) error
}

type providerService struct {
	providers repositories.ProviderRepository
	logger    *zap.Logger
}

func NewProviderService(providers repositories.ProviderRepository, logger *zap.Logger) ProviderService {
	return &providerService{providers: providers, logger: logger.Named("providers")}
}

func (s *providerService) Create(ctx context.Context, provider *models.Provider) (*models.Provider, error) {
	if provider.Name == "" {
		return nil, apperrors.Validation("name is required")
	}
	if provider.Model == "" {
		return nil, apperrors.Validation("model is required")
	}
	if err := llm.ValidateAPIKey(provider.Type, provider.APIKey); err != nil {
		return nil, err
	}

	provider.ID = uuid.NewString()
	provider.CreatedAt = time.Now().UTC()
	if err := s.providers.Create(ctx, provider); err != nil {
		return nil, err
	}
	s.logger.Info("provider registered",
		zap.String("provider_id", provider.ID),
		zap.String("type", string(provider.Type)),
		zap.Bool("default", provider.Default))
	return provider, nil
}

func (s *providerService) Get(ctx context.Context, id string) (*models.Provider, error) {
	return s.providers.Get(ctx, id)
}

func (s *providerService) List(ctx context.Context) ([]*models.Provider, error) {
	return s.providers.List(ctx)
}

func (s *providerService) Delete(ctx context.Context, id string) error {
	return s.providers.Delete(ctx, id)
}
