package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
)

// ProvidersHandler handles LLM provider registration. API keys come in
// on create only; the Provider JSON encoding never carries them back out.
type ProvidersHandler struct {
	service services.ProviderService
	logger  *zap.Logger
}

func NewProvidersHandler(service services.ProviderService, logger *zap.Logger) *ProvidersHandler {
	return &ProvidersHandler{service: service, logger: logger}
}

// RegisterRoutes registers the provider routes on the given mux.
func (h *ProvidersHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /providers", h.List)
	mux.HandleFunc("POST /providers", h.Create)
	mux.HandleFunc("GET /providers/{id}", h.Get)
	mux.HandleFunc("DELETE /providers/{id}", h.Delete)
}

// CreateProviderRequest is the JSON body of provider creation. The
// api_key field exists only here; Provider marshals it as "-".
type CreateProviderRequest struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Model    string            `json:"model"`
	APIKey   string            `json:"api_key"`
	Endpoint string            `json:"endpoint"`
	Default  bool              `json:"default"`
	Metadata map[string]string `json:"metadata"`
}

func (h *ProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list providers", err)
		return
	}
	h.write(w, http.StatusOK, map[string]any{"providers": providers})
}

func (h *ProvidersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProviderRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.fail(w, "decode provider", err)
		return
	}
	provider := &models.Provider{
		Name:     req.Name,
		Type:     models.ProviderType(req.Type),
		Model:    req.Model,
		APIKey:   req.APIKey,
		Endpoint: req.Endpoint,
		Default:  req.Default,
		Metadata: req.Metadata,
	}
	created, err := h.service.Create(r.Context(), provider)
	if err != nil {
		h.fail(w, "create provider", err)
		return
	}
	h.write(w, http.StatusCreated, created)
}

func (h *ProvidersHandler) Get(w http.ResponseWriter, r *http.Request) {
	provider, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get provider", err)
		return
	}
	h.write(w, http.StatusOK, provider)
}

func (h *ProvidersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete provider", err)
		return
	}
	h.write(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *ProvidersHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	if werr := WriteError(w, err); werr != nil {
		h.logger.Error("write error response", zap.Error(werr))
	}
}

func (h *ProvidersHandler) write(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}
