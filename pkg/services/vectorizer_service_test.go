package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

func fixtureSchema() *models.Schema {
	return &models.Schema{
		ConnectionID: "c1",
		Name:         "shop",
		DBType:       "postgresql",
		Version:      "16.2",
		Status:       models.SchemaStatusCompleted,
		Tables: []models.Table{
			{
				SchemaName: "public",
				Name:       "orders",
				RowCount:   1200,
				Columns: []models.Column{
					{Name: "id", DataType: "integer", PrimaryKey: true},
					{Name: "customer_id", DataType: "integer", ForeignKey: true, References: "customers.id", Nullable: false},
					{Name: "note", DataType: "text", Nullable: true, Description: "free-form comment"},
				},
			},
		},
	}
}

func TestRenderSchemaText(t *testing.T) {
	text := RenderSchemaText(fixtureSchema())

	assert.Contains(t, text, "Database: shop (postgresql 16.2)")
	assert.Contains(t, text, "Table public.orders (1200 rows)")
	assert.Contains(t, text, "id integer PRIMARY KEY")
	assert.Contains(t, text, "customer_id integer FOREIGN KEY -> customers.id NOT NULL")
	assert.Contains(t, text, "note text - free-form comment")
	// Nullable columns carry no NOT NULL flag.
	assert.NotContains(t, text, "note text NOT NULL")
}

func TestRenderSchemaTextCapsLength(t *testing.T) {
	schema := fixtureSchema()
	big := models.Table{SchemaName: "public", Name: "wide"}
	for i := 0; i < 300; i++ {
		big.Columns = append(big.Columns, models.Column{
			Name:        strings.Repeat("c", 90),
			DataType:    "text",
			Description: strings.Repeat("d", 400),
		})
	}
	for i := 0; i < 10; i++ {
		schema.Tables = append(schema.Tables, big)
	}

	text := RenderSchemaText(schema)
	assert.LessOrEqual(t, len(text), maxDescriptionChars+len("\n[description truncated]"))
	assert.True(t, strings.HasSuffix(text, "[description truncated]"))
}

func TestSchemaVectorIDIsDeterministic(t *testing.T) {
	a := SchemaVectorID("c1", "description")
	b := SchemaVectorID("c1", "description")
	c := SchemaVectorID("c1", "other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "schema_c1_"))
}

func TestVectorizeSchemaStoresAndRecordsID(t *testing.T) {
	schemas := newFakeSchemaRepo()
	schema := fixtureSchema()
	require.NoError(t, schemas.Upsert(context.Background(), schema))

	store := newFakeVectorStore()
	svc := NewVectorizerService(schemas, store, testLogger())

	vectorID, err := svc.VectorizeSchema(context.Background(), schema)
	require.NoError(t, err)

	_, ok := store.stored[vector.CollectionDatabaseSchemas+"/"+vectorID]
	assert.True(t, ok)

	persisted, err := schemas.GetByConnection(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, vectorID, persisted.VectorID)
	assert.Empty(t, persisted.VectorizationError)
}

func TestVectorizeSchemaRetriesTransientFailures(t *testing.T) {
	schemas := newFakeSchemaRepo()
	schema := fixtureSchema()
	require.NoError(t, schemas.Upsert(context.Background(), schema))

	store := newFakeVectorStore()
	store.fail = 2
	svc := NewVectorizerService(schemas, store, testLogger())

	_, err := svc.VectorizeSchema(context.Background(), schema)
	require.NoError(t, err)
}

func TestVectorizeSchemaRecordsErrorAfterExhaustion(t *testing.T) {
	schemas := newFakeSchemaRepo()
	schema := fixtureSchema()
	require.NoError(t, schemas.Upsert(context.Background(), schema))

	store := newFakeVectorStore()
	store.fail = vectorizeAttempts
	svc := NewVectorizerService(schemas, store, testLogger())

	_, err := svc.VectorizeSchema(context.Background(), schema)
	require.Error(t, err)

	persisted, err := schemas.GetByConnection(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotEmpty(t, persisted.VectorizationError)
	assert.Empty(t, persisted.VectorID)
}
