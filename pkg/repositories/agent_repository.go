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

// AgentRepository persists agents and their connection assignments.
// Deleting an agent cascades to its assignments.
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) error
	Delete(ctx context.Context, id string) error

	AssignConnection(ctx context.Context, assignment *models.AgentConnection) error
	ListAssignments(ctx context.Context, agentID string) ([]*models.AgentConnection, error)
	RemoveAssignment(ctx context.Context, agentID, connectionID string) error
}

type agentRepository struct {
	store *database.DocumentStore
}

// NewAgentRepository creates a repository over the document store.
func NewAgentRepository(store *database.DocumentStore) AgentRepository {
	return &agentRepository{store: store}
}

func (r *agentRepository) agents() *mongo.Collection {
	return r.store.Collection(database.CollectionAgents)
}

func (r *agentRepository) assignments() *mongo.Collection {
	return r.store.Collection(database.CollectionAgentConnections)
}

func (r *agentRepository) Create(ctx context.Context, agent *models.Agent) error {
	if _, err := r.agents().InsertOne(ctx, agent); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Newf(apperrors.KindConflict, "agent %q already exists", agent.ID)
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (r *agentRepository) Get(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	err := r.agents().FindOne(ctx, bson.M{"_id": id}).Decode(&agent)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("agent", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find agent: %w", err)
	}
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context) ([]*models.Agent, error) {
	cursor, err := r.agents().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Agent
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return out, nil
}

func (r *agentRepository) Update(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now().UTC()
	res, err := r.agents().ReplaceOne(ctx, bson.M{"_id": agent.ID}, agent)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("agent", agent.ID)
	}
	return nil
}

// Delete removes the agent and cascades to its connection assignments.
func (r *agentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.agents().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("agent", id)
	}
	if _, err := r.assignments().DeleteMany(ctx, bson.M{"agent_id": id}); err != nil {
		return fmt.Errorf("cascade agent assignments: %w", err)
	}
	return nil
}

func (r *agentRepository) AssignConnection(ctx context.Context, assignment *models.AgentConnection) error {
	if _, err := r.assignments().InsertOne(ctx, assignment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Newf(apperrors.KindConflict, "assignment %q already exists", assignment.ID)
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (r *agentRepository) ListAssignments(ctx context.Context, agentID string) ([]*models.AgentConnection, error) {
	cursor, err := r.assignments().Find(ctx, bson.M{"agent_id": agentID})
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.AgentConnection
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}
	return out, nil
}

func (r *agentRepository) RemoveAssignment(ctx context.Context, agentID, connectionID string) error {
	res, err := r.assignments().DeleteOne(ctx, bson.M{"agent_id": agentID, "connection_id": connectionID})
	if err != nil {
		return fmt.Errorf("remove assignment: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("assignment", agentID+"/"+connectionID)
	}
	return nil
}
