package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
)

// QueriesHandler handles the RAG query routes.
type QueriesHandler struct {
	queries  services.QueryService
	graphRAG services.GraphRAGService
	logger   *zap.Logger
}

func NewQueriesHandler(queries services.QueryService, graphRAG services.GraphRAGService, logger *zap.Logger) *QueriesHandler {
	return &QueriesHandler{queries: queries, graphRAG: graphRAG, logger: logger}
}

// RegisterRoutes registers the query routes on the given mux.
func (h *QueriesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /query", h.Query)
	mux.HandleFunc("POST /query/area/{area_id}", h.QueryArea)
	mux.HandleFunc("POST /query/personal", h.QueryPersonal)
	mux.HandleFunc("POST /query/graph", h.QueryGraph)
	mux.HandleFunc("POST /query/graph/advanced", h.QueryGraphAdvanced)
	mux.HandleFunc("GET /query/history", h.History)
}

func (h *QueriesHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req services.QueryRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode query", err)
		return
	}
	resp, err := h.queries.Query(r.Context(), req)
	if err != nil {
		h.fail(w, "query", err)
		return
	}
	h.write(w, resp)
}

func (h *QueriesHandler) QueryArea(w http.ResponseWriter, r *http.Request) {
	var req services.QueryRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode query", err)
		return
	}
	resp, err := h.queries.QueryArea(r.Context(), r.PathValue("area_id"), req)
	if err != nil {
		h.fail(w, "query area", err)
		return
	}
	h.write(w, resp)
}

func (h *QueriesHandler) QueryPersonal(w http.ResponseWriter, r *http.Request) {
	var req services.QueryRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode query", err)
		return
	}
	resp, err := h.queries.QueryPersonal(r.Context(), req)
	if err != nil {
		h.fail(w, "query personal", err)
		return
	}
	h.write(w, resp)
}

func (h *QueriesHandler) QueryGraph(w http.ResponseWriter, r *http.Request) {
	var req services.QueryRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode query", err)
		return
	}
	resp, err := h.graphRAG.Query(r.Context(), req)
	if err != nil {
		h.fail(w, "graph query", err)
		return
	}
	h.write(w, resp)
}

func (h *QueriesHandler) QueryGraphAdvanced(w http.ResponseWriter, r *http.Request) {
	var req services.GraphQueryRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode query", err)
		return
	}
	resp, err := h.graphRAG.QueryAdvanced(r.Context(), req)
	if err != nil {
		h.fail(w, "graph query advanced", err)
		return
	}
	h.write(w, resp)
}

func (h *QueriesHandler) History(w http.ResponseWriter, r *http.Request) {
	filter := repositories.HistoryFilter{
		UserID:       r.URL.Query().Get("user_id"),
		ConnectionID: r.URL.Query().Get("connection_id"),
		Limit:        int64(queryInt(r, "limit", 50)),
	}
	records, err := h.queries.History(r.Context(), filter)
	if err != nil {
		h.fail(w, "query history", err)
		return
	}
	h.write(w, map[string]any{"history": records})
}

func (h *QueriesHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	if werr := WriteError(w, err); werr != nil {
		h.logger.Error("write error response", zap.Error(werr))
	}
}

func (h *QueriesHandler) write(w http.ResponseWriter, data interface{}) {
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}
