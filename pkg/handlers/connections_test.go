package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mratomo/backend-aiss-sub000/pkg/adapters/datasource"
	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
)

func connectionsMux(svc services.ConnectionService) *http.ServeMux {
	mux := http.NewServeMux()
	NewConnectionsHandler(svc, testLogger()).RegisterRoutes(mux)
	return mux
}

func TestCreateConnectionReturns201WithoutPassword(t *testing.T) {
	svc := &stubConnectionService{
		create: func(ctx context.Context, input services.ConnectionInput) (*models.Connection, error) {
			return &models.Connection{
				ID:                "c1",
				Name:              input.Name,
				Type:              input.Type,
				Host:              input.Host,
				EncryptedPassword: "ciphertext",
				Status:            models.ConnectionStatusUnknown,
			}, nil
		},
	}
	mux := connectionsMux(svc)

	body := `{"name":"main","type":"postgresql","host":"db","port":5432,"database":"x","username":"u","password":"p"}`
	req := httptest.NewRequest(http.MethodPost, "/connections", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "ciphertext")

	var got models.Connection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "c1", got.ID)
}

func TestGetConnectionNotFoundMapsTo404(t *testing.T) {
	svc := &stubConnectionService{
		get: func(ctx context.Context, id string) (*models.Connection, error) {
			return nil, apperrors.NotFound("connection", id)
		},
	}
	mux := connectionsMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/connections/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
}

func TestTestConnectionFailureStillReturnsResultBody(t *testing.T) {
	svc := &stubConnectionService{
		test: func(ctx context.Context, id string) (*models.ConnectionTestResult, error) {
			return &models.ConnectionTestResult{
				Status:    models.ConnectionStatusError,
				ElapsedMS: 12,
				Error:     "connection refused",
			}, apperrors.Upstream("postgresql", assert.AnError)
		},
	}
	mux := connectionsMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/connections/c1/test", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result models.ConnectionTestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.ConnectionStatusError, result.Status)
	assert.Equal(t, "connection refused", result.Error)
}

func TestExecuteQueryRejectedStatementMapsTo400(t *testing.T) {
	svc := &stubConnectionService{
		execute: func(ctx context.Context, id, statement string, params map[string]any, timeout time.Duration) (*datasource.QueryResult, int64, error) {
			return nil, 0, apperrors.Validation("statement class not permitted")
		},
	}
	mux := connectionsMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/connections/c1/query",
		strings.NewReader(`{"query":"DROP TABLE users"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "statement class not permitted")
}

func TestExecuteQueryMalformedBodyMapsTo400(t *testing.T) {
	svc := &stubConnectionService{}
	mux := connectionsMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/connections/c1/query", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
