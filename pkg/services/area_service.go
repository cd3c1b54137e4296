package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/mcp"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
)

// AreaService manages knowledge areas. Creating an area creates its MCP
// context; deleting it removes the context from the registry.
type AreaService interface {
	Create(ctx context.Context, area *models.Area) (*models.Area, error)
	Get(ctx context.Context, id string) (*models.Area, error)
	List(ctx context.Context) ([]*models.Area, error)
	Update(ctx context.Context, area *models.Area) (*models.Area, error)
	Delete(ctx context.Context, id string) error
}

type areaService struct {
	areas    repositories.AreaRepository
	registry *mcp.Registry
	logger   *zap.Logger
}

func NewAreaService(areas repositories.AreaRepository, registry *mcp.Registry, logger *zap.Logger) AreaService {
	return &areaService{areas: areas, registry: registry, logger: logger.Named("areas")}
}

func (s *areaService) Create(ctx context.Context, area *models.Area) (*models.Area, error) {
	if area.Name == "" {
		return nil, apperrors.Validation("name is required")
	}
	now := time.Now().UTC()
	area.ID = uuid.NewString()
	area.CreatedAt = now
	area.UpdatedAt = now

	areaContext := &models.Context{
		ID:          uuid.NewString(),
		Name:        area.Name,
		Description: area.Description,
		Metadata: map[string]string{
			"type":    "area",
			"area_id": area.ID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.registry.Save(ctx, areaContext); err != nil {
		return nil, err
	}
	area.ContextID = areaContext.ID

	if err := s.areas.Create(ctx, area); err != nil {
		// Roll the context back so an orphan does not linger.
		if derr := s.registry.Delete(ctx, areaContext.ID); derr != nil {
			s.logger.Warn("remove context after failed area create",
				zap.String("context_id", areaContext.ID), zap.Error(derr))
		}
		return nil, err
	}
	s.logger.Info("area created",
		zap.String("area_id", area.ID),
		zap.String("context_id", area.ContextID))
	return area, nil
}

func (s *areaService) Get(ctx context.Context, id string) (*models.Area, error) {
	return s.areas.Get(ctx, id)
}

func (s *areaService) List(ctx context.Context) ([]*models.Area, error) {
	return s.areas.List(ctx)
}

func (s *areaService) Update(ctx context.Context, area *models.Area) (*models.Area, error) {
	existing, err := s.areas.Get(ctx, area.ID)
	if err != nil {
		return nil, err
	}
	if area.Name != "" {
		existing.Name = area.Name
	}
	if area.Description != "" {
		existing.Description = area.Description
	}
	if area.PreferredProviderID != "" {
		existing.PreferredProviderID = area.PreferredProviderID
	}
	if area.Metadata != nil {
		existing.Metadata = area.Metadata
	}
	existing.UpdatedAt = time.Now().UTC()
	if err := s.areas.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *areaService) Delete(ctx context.Context, id string) error {
	area, err := s.areas.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.areas.Delete(ctx, id); err != nil {
		return err
	}
	if area.ContextID != "" {
		if err := s.registry.Delete(ctx, area.ContextID); err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
			s.logger.Warn("remove area context",
				zap.String("context_id", area.ContextID), zap.Error(err))
		}
	}
	return nil
}
