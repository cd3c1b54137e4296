package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func TestRegisteredTypes(t *testing.T) {
	types := RegisteredTypes()
	assert.Contains(t, types, models.ConnectionTypePostgreSQL)
	assert.Contains(t, types, models.ConnectionTypeMySQL)
	assert.Contains(t, types, models.ConnectionTypeMongoDB)
	assert.Contains(t, types, models.ConnectionTypeSQLServer)
	assert.Contains(t, types, models.ConnectionTypeWeaviate)
}

func TestOpenUnknownType(t *testing.T) {
	conn := &models.Connection{ID: "c1", Type: models.ConnectionType("oracle")}
	_, err := Open(context.Background(), conn, "secret", zap.NewNop())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnsupported))
}

type stubDriver struct {
	Driver
	closed bool
}

func (s *stubDriver) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

func TestCacheReusesAndInvalidates(t *testing.T) {
	created := 0
	Register(models.ConnectionType("stub"), func(ctx context.Context, conn *models.Connection, password string, logger *zap.Logger) (Driver, error) {
		created++
		return &stubDriver{}, nil
	})

	cache := NewCache(zap.NewNop())
	conn := &models.Connection{ID: "c1", Type: models.ConnectionType("stub")}

	first, err := cache.Get(context.Background(), conn, "pw")
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), conn, "pw")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, created)

	cache.Invalidate(context.Background(), "c1")
	assert.True(t, first.(*stubDriver).closed)

	third, err := cache.Get(context.Background(), conn, "pw")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, created)

	cache.Close(context.Background())
	assert.True(t, third.(*stubDriver).closed)
}
