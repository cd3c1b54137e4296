package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

func testLogger() *zap.Logger { return zap.NewNop() }

type fakeConnectionRepo struct {
	mu    sync.Mutex
	conns map[string]*models.Connection
}

func newFakeConnectionRepo() *fakeConnectionRepo {
	return &fakeConnectionRepo{conns: map[string]*models.Connection{}}
}

func (f *fakeConnectionRepo) Create(ctx context.Context, conn *models.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[conn.ID] = conn
	return nil
}

func (f *fakeConnectionRepo) Get(ctx context.Context, id string) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[id]
	if !ok {
		return nil, apperrors.NotFound("connection", id)
	}
	cp := *conn
	return &cp, nil
}

func (f *fakeConnectionRepo) List(ctx context.Context) ([]*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Connection, 0, len(f.conns))
	for _, c := range f.conns {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeConnectionRepo) Update(ctx context.Context, conn *models.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conns[conn.ID]; !ok {
		return apperrors.NotFound("connection", conn.ID)
	}
	f.conns[conn.ID] = conn
	return nil
}

func (f *fakeConnectionRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conns[id]; !ok {
		return apperrors.NotFound("connection", id)
	}
	delete(f.conns, id)
	return nil
}

func (f *fakeConnectionRepo) UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus, checkedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[id]
	if !ok {
		return apperrors.NotFound("connection", id)
	}
	conn.Status = status
	conn.LastChecked = &checkedAt
	return nil
}

type fakeSchemaRepo struct {
	mu      sync.Mutex
	schemas map[string]*models.Schema
}

func newFakeSchemaRepo() *fakeSchemaRepo {
	return &fakeSchemaRepo{schemas: map[string]*models.Schema{}}
}

func (f *fakeSchemaRepo) GetByConnection(ctx context.Context, connectionID string) (*models.Schema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	schema, ok := f.schemas[connectionID]
	if !ok {
		return nil, apperrors.NotFound("schema", connectionID)
	}
	cp := *schema
	return &cp, nil
}

func (f *fakeSchemaRepo) Upsert(ctx context.Context, schema *models.Schema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *schema
	f.schemas[schema.ConnectionID] = &cp
	return nil
}

func (f *fakeSchemaRepo) SetVectorID(ctx context.Context, connectionID, vectorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	schema, ok := f.schemas[connectionID]
	if !ok {
		return apperrors.NotFound("schema", connectionID)
	}
	schema.VectorID = vectorID
	return nil
}

func (f *fakeSchemaRepo) SetVectorizationError(ctx context.Context, connectionID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	schema, ok := f.schemas[connectionID]
	if !ok {
		return apperrors.NotFound("schema", connectionID)
	}
	schema.VectorizationError = message
	return nil
}

func (f *fakeSchemaRepo) Delete(ctx context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.schemas, connectionID)
	return nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	records []*models.QueryRecord
}

func (f *fakeHistoryRepo) Record(ctx context.Context, rec *models.QueryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeHistoryRepo) List(ctx context.Context, filter repositories.HistoryFilter) ([]*models.QueryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.QueryRecord(nil), f.records...), nil
}

type fakeVectorStore struct {
	mu     sync.Mutex
	stored map[string]string // collection/docID -> text
	docs   map[string][]vector.Document
	fail   int // failures remaining before StoreText succeeds
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		stored: map[string]string{},
		docs:   map[string][]vector.Document{},
	}
}

func (f *fakeVectorStore) StoreText(ctx context.Context, collection, docID, text string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return apperrors.New(apperrors.KindUpstream, "embedder unavailable")
	}
	f.stored[collection+"/"+docID] = text
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, collection, query string, filter vector.SearchFilter, limit int) ([]vector.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := f.docs[collection]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return append([]vector.Document(nil), docs...), nil
}

func (f *fakeVectorStore) Ping(ctx context.Context) error { return nil }
func (f *fakeVectorStore) Close() error                   { return nil }

// fakeGraphStore serves the planner's read operations from fixture maps.
type fakeGraphStore struct {
	available bool
	tables    map[string][]models.GraphEntity // name -> matches
	relations map[string][]models.GraphRelation
	paths     []models.GraphPath
	connected []models.GraphEntity
	richest   []models.GraphEntity
	comms     []models.GraphCommunity
	rows      []map[string]any

	projected []*models.Schema
}

func (f *fakeGraphStore) ProjectSchema(ctx context.Context, schema *models.Schema) error {
	f.projected = append(f.projected, schema)
	return nil
}

func (f *fakeGraphStore) Describe(ctx context.Context, connectionID string) (string, error) {
	return "", nil
}

func (f *fakeGraphStore) Paths(ctx context.Context, connectionID, fromTable, toTable string, maxDepth int) ([]models.GraphPath, error) {
	return f.paths, nil
}

func (f *fakeGraphStore) Related(ctx context.Context, connectionID, tableName string, maxDepth int) ([]models.RelatedTable, error) {
	return nil, nil
}

func (f *fakeGraphStore) RelationsFor(ctx context.Context, connectionID, tableName string) ([]models.GraphRelation, error) {
	return f.relations[tableName], nil
}

func (f *fakeGraphStore) FindTables(ctx context.Context, connectionID, name string, fuzzy bool) ([]models.GraphEntity, error) {
	return f.tables[name], nil
}

func (f *fakeGraphStore) MostConnectedTables(ctx context.Context, connectionID string, limit int) ([]models.GraphEntity, error) {
	return f.connected, nil
}

func (f *fakeGraphStore) RichestTables(ctx context.Context, connectionID string, limit int) ([]models.GraphEntity, error) {
	return f.richest, nil
}

func (f *fakeGraphStore) Communities(ctx context.Context, connectionID string, limit int) ([]models.GraphCommunity, error) {
	return f.comms, nil
}

func (f *fakeGraphStore) RunQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return f.rows, nil
}

func (f *fakeGraphStore) Available() bool                  { return f.available }
func (f *fakeGraphStore) Ping(ctx context.Context) error   { return nil }
func (f *fakeGraphStore) Close(ctx context.Context) error  { return nil }

type fakeAgentRepo struct {
	mu          sync.Mutex
	agents      map[string]*models.Agent
	assignments []*models.AgentConnection
}

func newFakeAgentRepo() *fakeAgentRepo {
	return &fakeAgentRepo{agents: map[string]*models.Agent{}}
}

func (f *fakeAgentRepo) Create(ctx context.Context, agent *models.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[agent.ID] = agent
	return nil
}

func (f *fakeAgentRepo) Get(ctx context.Context, id string) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agent, ok := f.agents[id]
	if !ok {
		return nil, apperrors.NotFound("agent", id)
	}
	cp := *agent
	return &cp, nil
}

func (f *fakeAgentRepo) List(ctx context.Context) ([]*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeAgentRepo) Update(ctx context.Context, agent *models.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[agent.ID]; !ok {
		return apperrors.NotFound("agent", agent.ID)
	}
	f.agents[agent.ID] = agent
	return nil
}

func (f *fakeAgentRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.agents, id)
	return nil
}

func (f *fakeAgentRepo) AssignConnection(ctx context.Context, assignment *models.AgentConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments = append(f.assignments, assignment)
	return nil
}

func (f *fakeAgentRepo) ListAssignments(ctx context.Context, agentID string) ([]*models.AgentConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AgentConnection
	for _, a := range f.assignments {
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgentRepo) RemoveAssignment(ctx context.Context, agentID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.assignments[:0]
	for _, a := range f.assignments {
		if a.AgentID != agentID || a.ConnectionID != connectionID {
			kept = append(kept, a)
		}
	}
	f.assignments = kept
	return nil
}

type fakeAreaRepo struct {
	mu    sync.Mutex
	areas map[string]*models.Area
}

func newFakeAreaRepo() *fakeAreaRepo {
	return &fakeAreaRepo{areas: map[string]*models.Area{}}
}

func (f *fakeAreaRepo) Create(ctx context.Context, area *models.Area) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.areas[area.ID] = area
	return nil
}

func (f *fakeAreaRepo) Get(ctx context.Context, id string) (*models.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	area, ok := f.areas[id]
	if !ok {
		return nil, apperrors.NotFound("area", id)
	}
	cp := *area
	return &cp, nil
}

func (f *fakeAreaRepo) List(ctx context.Context) ([]*models.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Area, 0, len(f.areas))
	for _, a := range f.areas {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeAreaRepo) Update(ctx context.Context, area *models.Area) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.areas[area.ID] = area
	return nil
}

func (f *fakeAreaRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.areas, id)
	return nil
}

func (f *fakeAreaRepo) ClearContextReference(ctx context.Context, contextID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.areas {
		if a.ContextID == contextID {
			a.ContextID = ""
		}
	}
	return nil
}

type fakeProviderRepo struct {
	mu        sync.Mutex
	providers map[string]*models.Provider
}

func newFakeProviderRepo() *fakeProviderRepo {
	return &fakeProviderRepo{providers: map[string]*models.Provider{}}
}

func (f *fakeProviderRepo) Create(ctx context.Context, p *models.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.ID] = p
	return nil
}

func (f *fakeProviderRepo) Get(ctx context.Context, id string) (*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return nil, apperrors.NotFound("provider", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProviderRepo) GetDefault(ctx context.Context) (*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.providers {
		if p.Default {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("provider", "default")
}

func (f *fakeProviderRepo) List(ctx context.Context) ([]*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Provider, 0, len(f.providers))
	for _, p := range f.providers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeProviderRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.providers, id)
	return nil
}
