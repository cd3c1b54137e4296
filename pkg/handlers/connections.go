package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/adapters/datasource"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
)

// ExecuteQueryRequest is the body of POST /connections/{id}/query.
type ExecuteQueryRequest struct {
	Query          string         `json:"query"`
	Params         map[string]any `json:"params,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
}

// ExecuteQueryResponse carries the rows plus timing.
type ExecuteQueryResponse struct {
	Result    *datasource.QueryResult `json:"result"`
	ElapsedMS int64                   `json:"elapsed_ms"`
}

// ConnectionsHandler handles the connection registry routes.
type ConnectionsHandler struct {
	connections services.ConnectionService
	logger      *zap.Logger
}

func NewConnectionsHandler(connections services.ConnectionService, logger *zap.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{connections: connections, logger: logger}
}

// RegisterRoutes registers the connection routes on the given mux.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /connections", h.List)
	mux.HandleFunc("POST /connections", h.Create)
	mux.HandleFunc("GET /connections/{id}", h.Get)
	mux.HandleFunc("PUT /connections/{id}", h.Update)
	mux.HandleFunc("DELETE /connections/{id}", h.Delete)
	mux.HandleFunc("POST /connections/{id}/test", h.Test)
	mux.HandleFunc("POST /connections/{id}/query", h.ExecuteQuery)
}

func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connections.List(r.Context())
	if err != nil {
		h.fail(w, "list connections", err)
		return
	}
	h.write(w, http.StatusOK, conns)
}

func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.ConnectionInput
	if err := DecodeJSON(r, &input); err != nil {
		h.fail(w, "decode connection", err)
		return
	}
	conn, err := h.connections.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create connection", err)
		return
	}
	h.write(w, http.StatusCreated, conn)
}

func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get connection", err)
		return
	}
	h.write(w, http.StatusOK, conn)
}

func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input services.ConnectionInput
	if err := DecodeJSON(r, &input); err != nil {
		h.fail(w, "decode connection", err)
		return
	}
	conn, err := h.connections.Update(r.Context(), r.PathValue("id"), input)
	if err != nil {
		h.fail(w, "update connection", err)
		return
	}
	h.write(w, http.StatusOK, conn)
}

func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.connections.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete connection", err)
		return
	}
	h.write(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Test pings the target. A failed test still returns the recorded result
// body alongside the error status.
func (h *ConnectionsHandler) Test(w http.ResponseWriter, r *http.Request) {
	result, err := h.connections.Test(r.Context(), r.PathValue("id"))
	if err != nil && result == nil {
		h.fail(w, "test connection", err)
		return
	}
	h.write(w, http.StatusOK, result)
}

func (h *ConnectionsHandler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req ExecuteQueryRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode query", err)
		return
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	result, elapsed, err := h.connections.ExecuteQuery(r.Context(), r.PathValue("id"), req.Query, req.Params, timeout)
	if err != nil {
		h.fail(w, "execute query", err)
		return
	}
	h.write(w, http.StatusOK, ExecuteQueryResponse{Result: result, ElapsedMS: elapsed})
}

func (h *ConnectionsHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	if werr := WriteError(w, err); werr != nil {
		h.logger.Error("write error response", zap.Error(werr))
	}
}

func (h *ConnectionsHandler) write(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}
