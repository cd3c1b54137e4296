package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
)

// AssignConnectionRequest is the body of POST /agents/{id}/connections.
type AssignConnectionRequest struct {
	ConnectionID string `json:"connection_id"`
}

// AgentsHandler handles agent management routes.
type AgentsHandler struct {
	agents services.AgentService
	logger *zap.Logger
}

func NewAgentsHandler(agents services.AgentService, logger *zap.Logger) *AgentsHandler {
	return &AgentsHandler{agents: agents, logger: logger}
}

// RegisterRoutes registers the agent routes on the given mux.
func (h *AgentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /agents", h.List)
	mux.HandleFunc("POST /agents", h.Create)
	mux.HandleFunc("GET /agents/{id}", h.Get)
	mux.HandleFunc("PUT /agents/{id}", h.Update)
	mux.HandleFunc("DELETE /agents/{id}", h.Delete)
	mux.HandleFunc("GET /agents/{id}/prompts", h.GetPrompts)
	mux.HandleFunc("PUT /agents/{id}/prompts", h.UpdatePrompts)
	mux.HandleFunc("GET /agents/{id}/connections", h.ListConnections)
	mux.HandleFunc("POST /agents/{id}/connections", h.AssignConnection)
	mux.HandleFunc("DELETE /agents/{id}/connections/{cid}", h.RemoveConnection)
}

func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.List(r.Context())
	if err != nil {
		h.fail(w, "list agents", err)
		return
	}
	h.write(w, http.StatusOK, agents)
}

func (h *AgentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var agent models.Agent
	if err := DecodeJSON(r, &agent); err != nil {
		h.fail(w, "decode agent", err)
		return
	}
	created, err := h.agents.Create(r.Context(), &agent)
	if err != nil {
		h.fail(w, "create agent", err)
		return
	}
	h.write(w, http.StatusCreated, created)
}

func (h *AgentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.agents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get agent", err)
		return
	}
	h.write(w, http.StatusOK, agent)
}

func (h *AgentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var agent models.Agent
	if err := DecodeJSON(r, &agent); err != nil {
		h.fail(w, "decode agent", err)
		return
	}
	agent.ID = r.PathValue("id")
	updated, err := h.agents.Update(r.Context(), &agent)
	if err != nil {
		h.fail(w, "update agent", err)
		return
	}
	h.write(w, http.StatusOK, updated)
}

func (h *AgentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.agents.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete agent", err)
		return
	}
	h.write(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *AgentsHandler) GetPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.agents.GetPrompts(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get prompts", err)
		return
	}
	h.write(w, http.StatusOK, prompts)
}

func (h *AgentsHandler) UpdatePrompts(w http.ResponseWriter, r *http.Request) {
	var prompts models.AgentPrompts
	if err := DecodeJSON(r, &prompts); err != nil {
		h.fail(w, "decode prompts", err)
		return
	}
	if err := h.agents.UpdatePrompts(r.Context(), r.PathValue("id"), prompts); err != nil {
		h.fail(w, "update prompts", err)
		return
	}
	h.write(w, http.StatusOK, prompts)
}

func (h *AgentsHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.agents.ListConnections(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "list agent connections", err)
		return
	}
	h.write(w, http.StatusOK, conns)
}

func (h *AgentsHandler) AssignConnection(w http.ResponseWriter, r *http.Request) {
	var req AssignConnectionRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode assignment", err)
		return
	}
	assignment, err := h.agents.AssignConnection(r.Context(), r.PathValue("id"), req.ConnectionID)
	if err != nil {
		h.fail(w, "assign connection", err)
		return
	}
	h.write(w, http.StatusCreated, assignment)
}

func (h *AgentsHandler) RemoveConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.agents.RemoveConnection(r.Context(), r.PathValue("id"), r.PathValue("cid")); err != nil {
		h.fail(w, "remove connection", err)
		return
	}
	h.write(w, http.StatusOK, map[string]bool{"removed": true})
}

func (h *AgentsHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	if werr := WriteError(w, err); werr != nil {
		h.logger.Error("write error response", zap.Error(werr))
	}
}

func (h *AgentsHandler) write(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}
