package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
)

// AreasHandler handles knowledge-area CRUD.
type AreasHandler struct {
	service services.AreaService
	logger  *zap.Logger
}

func NewAreasHandler(service services.AreaService, logger *zap.Logger) *AreasHandler {
	return &AreasHandler{service: service, logger: logger}
}

// RegisterRoutes registers the area routes on the given mux.
func (h *AreasHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /areas", h.List)
	mux.HandleFunc("POST /areas", h.Create)
	mux.HandleFunc("GET /areas/{id}", h.Get)
	mux.HandleFunc("PUT /areas/{id}", h.Update)
	mux.HandleFunc("DELETE /areas/{id}", h.Delete)
}

func (h *AreasHandler) List(w http.ResponseWriter, r *http.Request) {
	areas, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list areas", err)
		return
	}
	h.write(w, http.StatusOK, map[string]any{"areas": areas})
}

func (h *AreasHandler) Create(w http.ResponseWriter, r *http.Request) {
	var area models.Area
	if err := DecodeJSON(r, &area); err != nil {
		h.fail(w, "decode area", err)
		return
	}
	created, err := h.service.Create(r.Context(), &area)
	if err != nil {
		h.fail(w, "create area", err)
		return
	}
	h.write(w, http.StatusCreated, created)
}

func (h *AreasHandler) Get(w http.ResponseWriter, r *http.Request) {
	area, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get area", err)
		return
	}
	h.write(w, http.StatusOK, area)
}

func (h *AreasHandler) Update(w http.ResponseWriter, r *http.Request) {
	var area models.Area
	if err := DecodeJSON(r, &area); err != nil {
		h.fail(w, "decode area", err)
		return
	}
	area.ID = r.PathValue("id")
	updated, err := h.service.Update(r.Context(), &area)
	if err != nil {
		h.fail(w, "update area", err)
		return
	}
	h.write(w, http.StatusOK, updated)
}

func (h *AreasHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete area", err)
		return
	}
	h.write(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AreasHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, zap.Error(err))
	if werr := WriteError(w, err); werr != nil {
		h.logger.Error("write error response", zap.Error(werr))
	}
}

func (h *AreasHandler) write(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}
