package handlers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/adapters/datasource"
	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

func testLogger() *zap.Logger { return zap.NewNop() }

// stubConnectionService lets each test plug in just the operations it
// exercises.
type stubConnectionService struct {
	create  func(ctx context.Context, input services.ConnectionInput) (*models.Connection, error)
	get     func(ctx context.Context, id string) (*models.Connection, error)
	list    func(ctx context.Context) ([]*models.Connection, error)
	update  func(ctx context.Context, id string, input services.ConnectionInput) (*models.Connection, error)
	del     func(ctx context.Context, id string) error
	test    func(ctx context.Context, id string) (*models.ConnectionTestResult, error)
	execute func(ctx context.Context, id, statement string, params map[string]any, timeout time.Duration) (*datasource.QueryResult, int64, error)
}

func (s *stubConnectionService) Create(ctx context.Context, input services.ConnectionInput) (*models.Connection, error) {
	return s.create(ctx, input)
}

func (s *stubConnectionService) Get(ctx context.Context, id string) (*models.Connection, error) {
	return s.get(ctx, id)
}

func (s *stubConnectionService) List(ctx context.Context) ([]*models.Connection, error) {
	return s.list(ctx)
}

func (s *stubConnectionService) Update(ctx context.Context, id string, input services.ConnectionInput) (*models.Connection, error) {
	return s.update(ctx, id, input)
}

func (s *stubConnectionService) Delete(ctx context.Context, id string) error {
	return s.del(ctx, id)
}

func (s *stubConnectionService) Test(ctx context.Context, id string) (*models.ConnectionTestResult, error) {
	return s.test(ctx, id)
}

func (s *stubConnectionService) ExecuteQuery(ctx context.Context, id, statement string, params map[string]any, timeout time.Duration) (*datasource.QueryResult, int64, error) {
	return s.execute(ctx, id, statement, params, timeout)
}

var _ services.ConnectionService = (*stubConnectionService)(nil)

type fakeContextRepo struct {
	mu       sync.Mutex
	contexts map[string]*models.Context
}

func newFakeContextRepo() *fakeContextRepo {
	return &fakeContextRepo{contexts: map[string]*models.Context{}}
}

func (r *fakeContextRepo) Save(ctx context.Context, c *models.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[c.ID] = c.Clone()
	return nil
}

func (r *fakeContextRepo) List(ctx context.Context) ([]*models.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (r *fakeContextRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contexts[id]; !ok {
		return apperrors.NotFound("context", id)
	}
	delete(r.contexts, id)
	return nil
}

// fakeVectorStore holds stored texts in memory and returns them all on
// any search, scored in insertion order.
type fakeVectorStore struct {
	mu     sync.Mutex
	stored []vector.Document
}

func (s *fakeVectorStore) StoreText(ctx context.Context, collection, docID, text string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, vector.Document{DocID: docID, Text: text, Metadata: metadata})
	return nil
}

func (s *fakeVectorStore) Search(ctx context.Context, collection, query string, filter vector.SearchFilter, limit int) ([]vector.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vector.Document, 0, len(s.stored))
	for i, doc := range s.stored {
		if len(out) >= limit {
			break
		}
		doc.Score = 1.0 - float64(i)*0.1
		out = append(out, doc)
	}
	return out, nil
}

func (s *fakeVectorStore) Ping(ctx context.Context) error { return nil }
func (s *fakeVectorStore) Close() error                   { return nil }

var _ vector.Store = (*fakeVectorStore)(nil)
