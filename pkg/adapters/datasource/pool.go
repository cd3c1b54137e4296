package datasource

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// Cache keeps one open driver per connection id, created lazily. Drivers
// are opened outside the lock so a slow target cannot stall the whole
// cache; when two openers race, the loser's handle is closed.
type Cache struct {
	mu      sync.Mutex
	drivers map[string]Driver
	logger  *zap.Logger
}

func NewCache(logger *zap.Logger) *Cache {
	return &Cache{
		drivers: make(map[string]Driver),
		logger:  logger.Named("driver_cache"),
	}
}

// Get returns the cached driver for the connection, opening one if needed.
func (c *Cache) Get(ctx context.Context, conn *models.Connection, password string) (Driver, error) {
	c.mu.Lock()
	if d, ok := c.drivers[conn.ID]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	d, err := Open(ctx, conn, password, c.logger)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.drivers[conn.ID]; ok {
		c.mu.Unlock()
		_ = d.Close(ctx)
		return existing, nil
	}
	c.drivers[conn.ID] = d
	c.mu.Unlock()
	return d, nil
}

// Invalidate closes and forgets the driver for a connection. Called when
// a connection's credentials or endpoint change, and on delete.
func (c *Cache) Invalidate(ctx context.Context, connectionID string) {
	c.mu.Lock()
	d, ok := c.drivers[connectionID]
	delete(c.drivers, connectionID)
	c.mu.Unlock()
	if ok {
		if err := d.Close(ctx); err != nil {
			c.logger.Warn("close cached driver", zap.String("connection_id", connectionID), zap.Error(err))
		}
	}
}

// Close releases every cached driver.
func (c *Cache) Close(ctx context.Context) {
	c.mu.Lock()
	drivers := c.drivers
	c.drivers = make(map[string]Driver)
	c.mu.Unlock()
	for id, d := range drivers {
		if err := d.Close(ctx); err != nil {
			c.logger.Warn("close cached driver", zap.String("connection_id", id), zap.Error(err))
		}
	}
}
