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

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
)

type stubDiscoveryService struct {
	getSchema func(ctx context.Context, connectionID string) (*models.Schema, error)
	start     func(ctx context.Context, connectionID string, opts models.DiscoveryOptions) (*models.Job, error)
	jobStatus func(jobID string) (*models.Job, error)
}

func (s *stubDiscoveryService) GetSchema(ctx context.Context, connectionID string) (*models.Schema, error) {
	return s.getSchema(ctx, connectionID)
}

func (s *stubDiscoveryService) StartDiscovery(ctx context.Context, connectionID string, opts models.DiscoveryOptions) (*models.Job, error) {
	return s.start(ctx, connectionID, opts)
}

func (s *stubDiscoveryService) JobStatus(jobID string) (*models.Job, error) {
	return s.jobStatus(jobID)
}

func (s *stubDiscoveryService) Shutdown(ctx context.Context) error { return nil }

var _ services.DiscoveryService = (*stubDiscoveryService)(nil)

func schemasMux(discovery services.DiscoveryService) *http.ServeMux {
	mux := http.NewServeMux()
	NewSchemasHandler(discovery, nil, nil, nil, nil, testLogger()).RegisterRoutes(mux)
	return mux
}

func TestDiscoverReturns202WithJobSnapshot(t *testing.T) {
	discovery := &stubDiscoveryService{
		start: func(ctx context.Context, connectionID string, opts models.DiscoveryOptions) (*models.Job, error) {
			return &models.Job{
				ID:                  "job-1",
				ConnectionID:        connectionID,
				Status:              models.JobStatusAccepted,
				StartedAt:           time.Now().UTC(),
				EstimatedCompletion: time.Now().UTC().Add(30 * time.Second),
			}, nil
		},
	}
	mux := schemasMux(discovery)

	req := httptest.NewRequest(http.MethodPost, "/schema/discover",
		strings.NewReader(`{"connection_id":"c1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobStatusAccepted, job.Status)
}

func TestDiscoverRequiresConnectionID(t *testing.T) {
	mux := schemasMux(&stubDiscoveryService{})

	req := httptest.NewRequest(http.MethodPost, "/schema/discover", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection_id")
}

func TestJobStatusExpiredJobMapsTo404(t *testing.T) {
	discovery := &stubDiscoveryService{
		jobStatus: func(jobID string) (*models.Job, error) {
			return nil, apperrors.NotFound("job", jobID)
		},
	}
	mux := schemasMux(discovery)

	req := httptest.NewRequest(http.MethodGet, "/schema/jobs/gone", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubAnalyzeService struct {
	analyze func(ctx context.Context, connectionID string) ([]models.SchemaQuerySuggestion, error)
}

func (s *stubAnalyzeService) Analyze(ctx context.Context, connectionID string) ([]models.SchemaQuerySuggestion, error) {
	return s.analyze(ctx, connectionID)
}

// The job status route and the per-connection action routes share the
// /schema/{x}/{y} shape; both must resolve from the same mux.
func TestJobStatusAndAnalyzeCoexist(t *testing.T) {
	discovery := &stubDiscoveryService{
		jobStatus: func(jobID string) (*models.Job, error) {
			return &models.Job{ID: jobID, Status: models.JobStatusInProgress}, nil
		},
	}
	analyze := &stubAnalyzeService{
		analyze: func(ctx context.Context, connectionID string) ([]models.SchemaQuerySuggestion, error) {
			return []models.SchemaQuerySuggestion{}, nil
		},
	}
	mux := http.NewServeMux()
	NewSchemasHandler(discovery, analyze, nil, nil, nil, testLogger()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schema/jobs/job-7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-7", job.ID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schema/c1/analyze", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "suggestions")
}

func TestUnknownSchemaActionMapsTo404(t *testing.T) {
	mux := schemasMux(&stubDiscoveryService{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schema/c1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSchemaReturnsPendingPlaceholder(t *testing.T) {
	discovery := &stubDiscoveryService{
		getSchema: func(ctx context.Context, connectionID string) (*models.Schema, error) {
			return &models.Schema{
				ConnectionID: connectionID,
				Status:       models.SchemaStatusPending,
				Tables:       []models.Table{},
			}, nil
		},
	}
	mux := schemasMux(discovery)

	req := httptest.NewRequest(http.MethodGet, "/schema/c1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var schema models.Schema
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, models.SchemaStatusPending, schema.Status)
	assert.Empty(t, schema.Tables)
}
