package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
)

// DiscoverRequest is the body of POST /schema/discover.
type DiscoverRequest struct {
	ConnectionID string                  `json:"connection_id"`
	Options      models.DiscoveryOptions `json:"options"`
}

// SchemasHandler handles schema discovery, analysis, vectorization and
// the graph read routes.
type SchemasHandler struct {
	discovery  services.DiscoveryService
	analyze    services.AnalyzeService
	vectorizer services.VectorizerService
	projection services.ProjectionService
	schemas    repositories.SchemaRepository
	logger     *zap.Logger
}

func NewSchemasHandler(
	discovery services.DiscoveryService,
	analyze services.AnalyzeService,
	vectorizer services.VectorizerService,
	projection services.ProjectionService,
	schemas repositories.SchemaRepository,
	logger *zap.Logger,
) *SchemasHandler {
	return &SchemasHandler{
		discovery:  discovery,
		analyze:    analyze,
		vectorizer: vectorizer,
		projection: projection,
		schemas:    schemas,
		logger:     logger,
	}
}

// RegisterRoutes registers the schema routes on the given mux. The job
// status route shares its shape with the per-connection actions, so a
// single pattern dispatches on the first path segment; registering
// "/schema/jobs/{job_id}" alongside "/schema/{connection_id}/analyze"
// would be ambiguous to the mux.
func (h *SchemasHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /schema/{connection_id}", h.GetSchema)
	mux.HandleFunc("POST /schema/discover", h.Discover)
	mux.HandleFunc("GET /schema/{connection_id}/{action}", h.SchemaAction)
	mux.HandleFunc("GET /schema/{connection_id}/graph/{view}", h.GraphView)
}

// SchemaAction routes GET /schema/{connection_id}/{action}. The literal
// first segment "jobs" means {action} is a job id.
func (h *SchemasHandler) SchemaAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	if r.PathValue("connection_id") == "jobs" {
		h.jobStatus(w, action)
		return
	}
	switch action {
	case "analyze":
		h.Analyze(w, r)
	case "vectorize":
		h.Vectorize(w, r)
	case "graph":
		h.DescribeGraph(w, r)
	default:
		h.fail(w, "schema action", apperrors.NotFound("route", r.URL.Path))
	}
}

// GraphView routes GET /schema/{connection_id}/graph/{view}.
func (h *SchemasHandler) GraphView(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("view") {
	case "paths":
		h.GraphPaths(w, r)
	case "related":
		h.GraphRelated(w, r)
	default:
		h.fail(w, "graph view", apperrors.NotFound("route", r.URL.Path))
	}
}

func (h *SchemasHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.discovery.GetSchema(r.Context(), r.PathValue("connection_id"))
	if err != nil {
		h.fail(w, "get schema", err)
		return
	}
	h.write(w, http.StatusOK, schema)
}

func (h *SchemasHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode discover request", err)
		return
	}
	if req.ConnectionID == "" {
		h.fail(w, "decode discover request", apperrors.Validation("connection_id is required"))
		return
	}
	job, err := h.discovery.StartDiscovery(r.Context(), req.ConnectionID, req.Options)
	if err != nil {
		h.fail(w, "start discovery", err)
		return
	}
	h.write(w, http.StatusAccepted, job)
}

func (h *SchemasHandler) jobStatus(w http.ResponseWriter, jobID string) {
	job, err := h.discovery.JobStatus(jobID)
	if err != nil {
		h.fail(w, "job status", err)
		return
	}
	h.write(w, http.StatusOK, job)
}

func (h *SchemasHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.analyze.Analyze(r.Context(), r.PathValue("connection_id"))
	if err != nil {
		h.fail(w, "analyze schema", err)
		return
	}
	h.write(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *SchemasHandler) Vectorize(w http.ResponseWriter, r *http.Request) {
	connectionID := r.PathValue("connection_id")
	schema, err := h.schemas.GetByConnection(r.Context(), connectionID)
	if err != nil {
		h.fail(w, "get schema for vectorization", err)
		return
	}
	vectorID, err := h.vectorizer.VectorizeSchema(r.Context(), schema)
	if err != nil {
		h.fail(w, "vectorize schema", err)
		return
	}
	h.write(w, http.StatusOK, map[string]string{"vector_id": vectorID})
}

func (h *SchemasHandler) DescribeGraph(w http.ResponseWriter, r *http.Request) {
	description, err := h.projection.Describe(r.Context(), r.PathValue("connection_id"))
	if err != nil {
		h.fail(w, "describe graph", err)
		return
	}
	h.write(w, http.StatusOK, map[string]string{"description": description})
}

func (h *SchemasHandler) GraphPaths(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		h.fail(w, "graph paths", apperrors.Validation("from and to are required"))
		return
	}
	paths, err := h.projection.Paths(r.Context(), r.PathValue("connection_id"), from, to, queryInt(r, "max_depth", 3))
	if err != nil {
		h.fail(w, "graph paths", err)
		return
	}
	h.write(w, http.StatusOK, map[string]any{"paths": paths})
}

func (h *SchemasHandler) GraphRelated(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		h.fail(w, "graph related", apperrors.Validation("table is required"))
		return
	}
	related, err := h.projection.Related(r.Context(), r.PathValue("connection_id"), table, queryInt(r, "max_depth", 2))
	if err != nil {
		h.fail(w, "graph related", err)
		return
	}
	h.write(w, http.StatusOK, map[string]any{"related": related})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (h *SchemasHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	if werr := WriteError(w, err); werr != nil {
		h.logger.Error("write error response", zap.Error(werr))
	}
}

func (h *SchemasHandler) write(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}
