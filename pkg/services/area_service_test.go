package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/mcp"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

type fakeContextRepo struct {
	mu    sync.Mutex
	saved map[string]*models.Context
}

func newFakeContextRepo() *fakeContextRepo {
	return &fakeContextRepo{saved: map[string]*models.Context{}}
}

func (f *fakeContextRepo) Save(ctx context.Context, c *models.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[c.ID] = c.Clone()
	return nil
}

func (f *fakeContextRepo) List(ctx context.Context) ([]*models.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Context, 0, len(f.saved))
	for _, c := range f.saved {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (f *fakeContextRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, id)
	return nil
}

func newTestAreaService(t *testing.T) (AreaService, *mcp.Registry) {
	t.Helper()
	registry := mcp.NewRegistry(newFakeContextRepo(), testLogger())
	return NewAreaService(newFakeAreaRepo(), registry, testLogger()), registry
}

func TestAreaCreateProducesContext(t *testing.T) {
	svc, registry := newTestAreaService(t)

	area, err := svc.Create(context.Background(), &models.Area{Name: "finance"})
	require.NoError(t, err)
	require.NotEmpty(t, area.ContextID)

	c, err := registry.Get(area.ContextID)
	require.NoError(t, err)
	assert.Equal(t, "finance", c.Name)
	assert.Equal(t, "area", c.Metadata["type"])
	assert.Equal(t, area.ID, c.Metadata["area_id"])
}

func TestAreaDeleteRemovesContext(t *testing.T) {
	svc, registry := newTestAreaService(t)

	area, err := svc.Create(context.Background(), &models.Area{Name: "ops"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), area.ID))
	_, err = registry.Get(area.ContextID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestAreaCreateRequiresName(t *testing.T) {
	svc, _ := newTestAreaService(t)
	_, err := svc.Create(context.Background(), &models.Area{})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestProviderCreateValidatesKeyShape(t *testing.T) {
	svc := NewProviderService(newFakeProviderRepo(), testLogger())

	_, err := svc.Create(context.Background(), &models.Provider{
		Name:   "openai",
		Type:   models.ProviderTypeOpenAI,
		Model:  "gpt-4o",
		APIKey: "wrong-prefix",
	})
	require.Error(t, err)

	provider, err := svc.Create(context.Background(), &models.Provider{
		Name:   "openai",
		Type:   models.ProviderTypeOpenAI,
		Model:  "gpt-4o",
		APIKey: "sk-0123456789abcdef0123456789",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, provider.ID)
}
