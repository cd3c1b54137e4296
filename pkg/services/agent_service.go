package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
)

// AgentService manages agents, their prompt slots and their connection
// assignments.
type AgentService interface {
	Create(ctx context.Context, agent *models.Agent) (*models.Agent, error)
	Get(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) (*models.Agent, error)
	Delete(ctx context.Context, id string) error

	GetPrompts(ctx context.Context, id string) (*models.AgentPrompts, error)
	UpdatePrompts(ctx context.Context, id string, prompts models.AgentPrompts) error

	AssignConnection(ctx context.Context, agentID, connectionID string) (*models.AgentConnection, error)
	// ListConnections resolves assignments to connections. Assignments
	// orphaned by a deleted connection are skipped.
	ListConnections(ctx context.Context, agentID string) ([]*models.Connection, error)
	RemoveConnection(ctx context.Context, agentID, connectionID string) error
}

type agentService struct {
	agents      repositories.AgentRepository
	connections repositories.ConnectionRepository
	logger      *zap.Logger
}

func NewAgentService(agents repositories.AgentRepository, connections repositories.ConnectionRepository, logger *zap.Logger) AgentService {
	return &agentService{agents: agents, connections: connections, logger: logger.Named("agents")}
}

func (s *agentService) Create(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	if agent.Name == "" {
		return nil, apperrors.Validation("name is required")
	}
	now := time.Now().UTC()
	agent.ID = uuid.NewString()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *agentService) Get(ctx context.Context, id string) (*models.Agent, error) {
	return s.agents.Get(ctx, id)
}

func (s *agentService) List(ctx context.Context) ([]*models.Agent, error) {
	return s.agents.List(ctx)
}

func (s *agentService) Update(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	existing, err := s.agents.Get(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if agent.Name != "" {
		existing.Name = agent.Name
	}
	if agent.Model != "" {
		existing.Model = agent.Model
	}
	if len(agent.ExampleQueries) > 0 {
		existing.ExampleQueries = agent.ExampleQueries
	}
	existing.UpdatedAt = time.Now().UTC()
	if err := s.agents.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *agentService) Delete(ctx context.Context, id string) error {
	return s.agents.Delete(ctx, id)
}

func (s *agentService) GetPrompts(ctx context.Context, id string) (*models.AgentPrompts, error) {
	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prompts := agent.Prompts
	return &prompts, nil
}

func (s *agentService) UpdatePrompts(ctx context.Context, id string, prompts models.AgentPrompts) error {
	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return err
	}
	agent.Prompts = prompts
	agent.UpdatedAt = time.Now().UTC()
	return s.agents.Update(ctx, agent)
}

func (s *agentService) AssignConnection(ctx context.Context, agentID, connectionID string) (*models.AgentConnection, error) {
	if _, err := s.agents.Get(ctx, agentID); err != nil {
		return nil, err
	}
	if _, err := s.connections.Get(ctx, connectionID); err != nil {
		return nil, err
	}
	assignment := &models.AgentConnection{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		ConnectionID: connectionID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.agents.AssignConnection(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *agentService) ListConnections(ctx context.Context, agentID string) ([]*models.Connection, error) {
	if _, err := s.agents.Get(ctx, agentID); err != nil {
		return nil, err
	}
	assignments, err := s.agents.ListAssignments(ctx, agentID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Connection, 0, len(assignments))
	for _, a := range assignments {
		conn, err := s.connections.Get(ctx, a.ConnectionID)
		if err != nil {
			if apperrors.Is(err, apperrors.KindNotFound) {
				s.logger.Debug("skipping orphaned assignment",
					zap.String("agent_id", agentID),
					zap.String("connection_id", a.ConnectionID))
				continue
			}
			return nil, err
		}
		out = append(out, conn)
	}
	return out, nil
}

func (s *agentService) RemoveConnection(ctx context.Context, agentID, connectionID string) error {
	return s.agents.RemoveAssignment(ctx, agentID, connectionID)
}
