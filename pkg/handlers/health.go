package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/database"
	"github.com/mratomo/backend-aiss-sub000/pkg/graph"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

// HealthHandler reports per-dependency readiness and exposes the
// Prometheus scrape endpoint.
type HealthHandler struct {
	documents   *database.DocumentStore
	vectorStore vector.Store
	graphStore  graph.Store
	logger      *zap.Logger
}

func NewHealthHandler(documents *database.DocumentStore, vectorStore vector.Store, graphStore graph.Store, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{documents: documents, vectorStore: vectorStore, graphStore: graphStore, logger: logger}
}

// RegisterRoutes registers the observability routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := map[string]string{
		"mongodb": h.check(ctx, "mongodb", h.documents.Ping),
		"vector":  h.check(ctx, "vector", h.vectorStore.Ping),
	}
	if h.graphStore != nil && h.graphStore.Available() {
		deps["graph"] = h.check(ctx, "graph", h.graphStore.Ping)
	} else {
		deps["graph"] = "disabled"
	}

	status := "ok"
	code := http.StatusOK
	for _, state := range deps {
		if state == "error" {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	if err := WriteJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
	}); err != nil {
		h.logger.Error("write response", zap.Error(err))
	}
}

func (h *HealthHandler) check(ctx context.Context, name string, ping func(context.Context) error) string {
	if err := ping(ctx); err != nil {
		h.logger.Warn("dependency check failed", zap.String("dependency", name), zap.Error(err))
		return "error"
	}
	return "ok"
}
