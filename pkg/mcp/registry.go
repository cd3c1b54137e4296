// Package mcp hosts the context runtime: a process-wide context registry
// with idempotent activation, the store_document / find_relevant tools,
// and the two interchangeable clients (embedded and HTTP).
package mcp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
)

// Registry maps context_id to Context. A single exclusive lock covers
// activation and deactivation so concurrent callers observe consistent
// active state; listing is a lock-free snapshot.
type Registry struct {
	mu       sync.Mutex
	contexts map[string]*models.Context
	snapshot atomic.Pointer[[]*models.Context]

	repo   repositories.ContextRepository
	logger *zap.Logger
}

func NewRegistry(repo repositories.ContextRepository, logger *zap.Logger) *Registry {
	r := &Registry{
		contexts: make(map[string]*models.Context),
		repo:     repo,
		logger:   logger.Named("mcp_registry"),
	}
	r.publishLocked()
	return r
}

// Load hydrates the registry from the document store. Called once at
// startup, before the HTTP surface accepts traffic.
func (r *Registry) Load(ctx context.Context) error {
	stored, err := r.repo.List(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	for _, c := range stored {
		r.contexts[c.ID] = c.Clone()
	}
	r.publishLocked()
	r.mu.Unlock()
	r.logger.Info("contexts loaded", zap.Int("count", len(stored)))
	return nil
}

// publishLocked rebuilds the active-context snapshot. Caller holds mu.
func (r *Registry) publishLocked() {
	active := make([]*models.Context, 0)
	for _, c := range r.contexts {
		if c.Active {
			active = append(active, c.Clone())
		}
	}
	r.snapshot.Store(&active)
}

// Save registers or updates a context and persists it.
func (r *Registry) Save(ctx context.Context, c *models.Context) error {
	if c.ID == "" {
		return apperrors.Validation("context id is required")
	}
	if err := r.repo.Save(ctx, c); err != nil {
		return err
	}
	r.mu.Lock()
	r.contexts[c.ID] = c.Clone()
	r.publishLocked()
	r.mu.Unlock()
	return nil
}

// Get returns a copy of the context.
func (r *Registry) Get(id string) (*models.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[id]
	if !ok {
		return nil, apperrors.NotFound("context", id)
	}
	return c.Clone(), nil
}

// Delete removes a context from the registry and the document store.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.contexts[id]
	delete(r.contexts, id)
	r.publishLocked()
	r.mu.Unlock()
	if !ok {
		return apperrors.NotFound("context", id)
	}
	return r.repo.Delete(ctx, id)
}

// Activate marks a context active. Idempotent: a second activation leaves
// observable state unchanged apart from last_activated. Activating an
// unknown context fails with NotFound; callers create an area (which
// produces a context) first.
func (r *Registry) Activate(ctx context.Context, id string) (*models.Context, error) {
	r.mu.Lock()
	c, ok := r.contexts[id]
	if !ok {
		r.mu.Unlock()
		return nil, apperrors.NotFound("context", id)
	}
	now := time.Now().UTC()
	c.Active = true
	c.LastActivated = &now
	c.UpdatedAt = now
	copied := c.Clone()
	r.publishLocked()
	r.mu.Unlock()

	if err := r.repo.Save(ctx, copied); err != nil {
		r.logger.Warn("persist context activation", zap.String("context_id", id), zap.Error(err))
	}
	return copied, nil
}

// Deactivate marks a context inactive. Idempotent; NotFound for unknown ids.
func (r *Registry) Deactivate(ctx context.Context, id string) (*models.Context, error) {
	r.mu.Lock()
	c, ok := r.contexts[id]
	if !ok {
		r.mu.Unlock()
		return nil, apperrors.NotFound("context", id)
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	copied := c.Clone()
	r.publishLocked()
	r.mu.Unlock()

	if err := r.repo.Save(ctx, copied); err != nil {
		r.logger.Warn("persist context deactivation", zap.String("context_id", id), zap.Error(err))
	}
	return copied, nil
}

// ActiveContexts returns the current snapshot without taking the lock.
func (r *Registry) ActiveContexts() []*models.Context {
	return *r.snapshot.Load()
}

// ActiveContextsByType filters the snapshot by metadata.type. Both
// clients expose this filter so they stay interchangeable.
func (r *Registry) ActiveContextsByType(metadataType string) []*models.Context {
	all := r.ActiveContexts()
	if metadataType == "" {
		return all
	}
	out := make([]*models.Context, 0, len(all))
	for _, c := range all {
		if c.Metadata["type"] == metadataType {
			out = append(out, c)
		}
	}
	return out
}
