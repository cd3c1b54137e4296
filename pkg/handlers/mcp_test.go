package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mratomo/backend-aiss-sub000/pkg/mcp"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func mcpMux(t *testing.T, contexts ...*models.Context) (*http.ServeMux, *mcp.Registry) {
	t.Helper()
	repo := newFakeContextRepo()
	registry := mcp.NewRegistry(repo, testLogger())
	for _, c := range contexts {
		require.NoError(t, registry.Save(context.Background(), c))
	}
	client := mcp.NewEmbeddedClient(registry, &fakeVectorStore{})

	mux := http.NewServeMux()
	NewMCPHandler(registry, client, testLogger()).RegisterRoutes(mux)
	return mux, registry
}

func TestActivateIsIdempotentOverHTTP(t *testing.T) {
	mux, _ := mcpMux(t, &models.Context{ID: "ctx-A", Name: "alpha"})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/contexts/ctx-A/activate", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/mcp/active-contexts", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result mcp.ContextsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Contexts, 1)
	assert.Equal(t, "ctx-A", result.Contexts[0].ID)
	assert.True(t, result.Contexts[0].Active)
	assert.Equal(t, "native", result.ClientType)
}

func TestActiveContextsTypeFilter(t *testing.T) {
	mux, registry := mcpMux(t,
		&models.Context{ID: "ctx-area", Name: "area ctx", Metadata: map[string]string{"type": "area"}},
		&models.Context{ID: "ctx-misc", Name: "misc ctx"},
	)
	_, err := registry.Activate(context.Background(), "ctx-area")
	require.NoError(t, err)
	_, err = registry.Activate(context.Background(), "ctx-misc")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/mcp/active-contexts?type=area", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result mcp.ContextsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Contexts, 1)
	assert.Equal(t, "ctx-area", result.Contexts[0].ID)
}

func TestActivateUnknownContextMapsTo404(t *testing.T) {
	mux, _ := mcpMux(t)

	req := httptest.NewRequest(http.MethodPost, "/contexts/nope/activate", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreDocumentRequiresInformation(t *testing.T) {
	mux, _ := mcpMux(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/store-document",
		strings.NewReader(`{"metadata":{"owner_id":"u1"}}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreThenFindRoundTrip(t *testing.T) {
	mux, _ := mcpMux(t)

	store := httptest.NewRequest(http.MethodPost, "/mcp/tools/store-document",
		strings.NewReader(`{"information":"the orders table references customers","metadata":{"owner_id":"u1"}}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, store)
	require.Equal(t, http.StatusOK, rec.Code)

	var ack mcp.StoreAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.NotEmpty(t, ack.DocID)
	assert.Equal(t, "native", ack.ClientType)

	find := httptest.NewRequest(http.MethodPost, "/mcp/tools/find-relevant",
		strings.NewReader(`{"query":"orders"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, find)
	require.Equal(t, http.StatusOK, rec.Code)

	var result mcp.FindResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Results, 1)
	assert.Contains(t, result.Results[0].Text, "orders table")
	assert.Equal(t, "native", result.ClientType)
}

func TestFindRelevantRequiresQuery(t *testing.T) {
	mux, _ := mcpMux(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/find-relevant", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMCPStatus(t *testing.T) {
	mux, registry := mcpMux(t, &models.Context{ID: "ctx-A", Name: "alpha"})
	_, err := registry.Activate(context.Background(), "ctx-A")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/mcp/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, float64(1), status["active_contexts"])
}
