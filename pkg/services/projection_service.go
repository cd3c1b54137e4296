package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/graph"
	"github.com/mratomo/backend-aiss-sub000/pkg/metrics"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// ProjectionService projects schemas into the graph store and serves the
// graph read operations.
type ProjectionService interface {
	Projector

	Describe(ctx context.Context, connectionID string) (string, error)
	Paths(ctx context.Context, connectionID, fromTable, toTable string, maxDepth int) ([]models.GraphPath, error)
	Related(ctx context.Context, connectionID, tableName string, maxDepth int) ([]models.RelatedTable, error)
}

type projectionService struct {
	store  graph.Store
	logger *zap.Logger
}

func NewProjectionService(store graph.Store, logger *zap.Logger) ProjectionService {
	return &projectionService{store: store, logger: logger.Named("projection")}
}

func (s *projectionService) Project(ctx context.Context, schema *models.Schema) error {
	if !s.store.Available() {
		return apperrors.New(apperrors.KindUnsupported, "graph store not configured")
	}
	if err := s.store.ProjectSchema(ctx, schema); err != nil {
		metrics.GraphProjections.WithLabelValues("error").Inc()
		return err
	}
	metrics.GraphProjections.WithLabelValues("ok").Inc()
	s.logger.Info("schema projected",
		zap.String("connection_id", schema.ConnectionID),
		zap.Int("tables", len(schema.Tables)))
	return nil
}

func (s *projectionService) Describe(ctx context.Context, connectionID string) (string, error) {
	if !s.store.Available() {
		return "", apperrors.New(apperrors.KindUnsupported, "graph store not configured")
	}
	return s.store.Describe(ctx, connectionID)
}

func (s *projectionService) Paths(ctx context.Context, connectionID, fromTable, toTable string, maxDepth int) ([]models.GraphPath, error) {
	if !s.store.Available() {
		return nil, apperrors.New(apperrors.KindUnsupported, "graph store not configured")
	}
	return s.store.Paths(ctx, connectionID, fromTable, toTable, maxDepth)
}

func (s *projectionService) Related(ctx context.Context, connectionID, tableName string, maxDepth int) ([]models.RelatedTable, error) {
	if !s.store.Available() {
		return nil, apperrors.New(apperrors.KindUnsupported, "graph store not configured")
	}
	return s.store.Related(ctx, connectionID, tableName, maxDepth)
}
