package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/mcp"
)

// MCPHandler exposes the context runtime over plain JSON. The paths and
// body shapes mirror what mcp.HTTPClient sends, so a sibling process can
// use the HTTP client against this surface interchangeably with the
// embedded one.
type MCPHandler struct {
	registry *mcp.Registry
	client   *mcp.EmbeddedClient
	logger   *zap.Logger
}

func NewMCPHandler(registry *mcp.Registry, client *mcp.EmbeddedClient, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{registry: registry, client: client, logger: logger}
}

// RegisterRoutes registers the MCP runtime routes on the given mux.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /mcp/status", h.Status)
	mux.HandleFunc("GET /mcp/active-contexts", h.ActiveContexts)
	mux.HandleFunc("POST /contexts/{id}/activate", h.Activate)
	mux.HandleFunc("POST /contexts/{id}/deactivate", h.Deactivate)
	mux.HandleFunc("POST /mcp/tools/store-document", h.StoreDocument)
	mux.HandleFunc("POST /mcp/tools/find-relevant", h.FindRelevant)
}

func (h *MCPHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"client_type":     h.client.ClientType(),
		"active_contexts": len(h.registry.ActiveContexts()),
		"tools":           []string{"store_document", "find_relevant"},
	})
}

func (h *MCPHandler) ActiveContexts(w http.ResponseWriter, r *http.Request) {
	result, err := h.client.ActiveContexts(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, "list active contexts", err)
		return
	}
	h.write(w, http.StatusOK, result)
}

func (h *MCPHandler) Activate(w http.ResponseWriter, r *http.Request) {
	c, err := h.registry.Activate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "activate context", err)
		return
	}
	h.write(w, http.StatusOK, c)
}

func (h *MCPHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	c, err := h.registry.Deactivate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "deactivate context", err)
		return
	}
	h.write(w, http.StatusOK, c)
}

// StoreDocumentRequest is the JSON body of the store-document tool route.
type StoreDocumentRequest struct {
	Information string            `json:"information"`
	Metadata    map[string]string `json:"metadata"`
}

func (h *MCPHandler) StoreDocument(w http.ResponseWriter, r *http.Request) {
	var req StoreDocumentRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode store-document", err)
		return
	}
	if req.Information == "" {
		h.fail(w, "store document", apperrors.Validation("information is required"))
		return
	}
	ack, err := h.client.StoreDocument(r.Context(), req.Information, req.Metadata)
	if err != nil {
		h.fail(w, "store document", err)
		return
	}
	h.write(w, http.StatusOK, ack)
}

// FindRelevantRequest is the JSON body of the find-relevant tool route.
type FindRelevantRequest struct {
	Query         string `json:"query"`
	EmbeddingType string `json:"embedding_type"`
	OwnerID       string `json:"owner_id"`
	AreaID        string `json:"area_id"`
	Limit         int    `json:"limit"`
}

func (h *MCPHandler) FindRelevant(w http.ResponseWriter, r *http.Request) {
	var req FindRelevantRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode find-relevant", err)
		return
	}
	if req.Query == "" {
		h.fail(w, "find relevant", apperrors.Validation("query is required"))
		return
	}
	result, err := h.client.FindRelevant(r.Context(), req.Query, mcp.FindOptions{
		EmbeddingType: req.EmbeddingType,
		OwnerID:       req.OwnerID,
		AreaID:        req.AreaID,
		Limit:         req.Limit,
	})
	if err != nil {
		h.fail(w, "find relevant", err)
		return
	}
	h.write(w, http.StatusOK, result)
}

func (h *MCPHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	if werr := WriteError(w, err); werr != nil {
		h.logger.Error("write error response", zap.Error(werr))
	}
}

func (h *MCPHandler) write(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}
