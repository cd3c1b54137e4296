// Package datasource dispatches target-database access through a driver
// registry keyed by connection type. Each driver implements three verbs:
// test, execute_query and get_schema.
package datasource

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// MaxQueryRows is the hard cap on rows returned by ExecuteQuery. Protects
// against unbounded result sets.
const MaxQueryRows = 1000

// QueryResult holds the rows produced by ExecuteQuery.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// SchemaSnapshot is the raw extraction result of get_schema before the
// orchestrator applies caps and truncation.
type SchemaSnapshot struct {
	DatabaseName string
	Version      string
	Tables       []models.Table
}

// Driver is a live handle on one target database. Implementations are
// stateless per call; pooling happens in the Cache.
type Driver interface {
	// Test verifies reachability with the stored credentials.
	Test(ctx context.Context) error

	// ExecuteQuery runs a statement with named parameters rewritten for
	// the target dialect. Rows are capped at MaxQueryRows.
	ExecuteQuery(ctx context.Context, statement string, params map[string]any) (*QueryResult, error)

	// GetSchema extracts tables, columns, keys and references.
	GetSchema(ctx context.Context, opts models.DiscoveryOptions) (*SchemaSnapshot, error)

	Close(ctx context.Context) error
}

// Factory opens a driver for a connection with its already decrypted
// password. The password never lands on the Connection struct.
type Factory func(ctx context.Context, conn *models.Connection, password string, logger *zap.Logger) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[models.ConnectionType]Factory)
)

// Register is called from each driver's init(). Safe for concurrent use.
func Register(connType models.ConnectionType, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[connType] = factory
}

// RegisteredTypes lists the connection types with a driver available.
func RegisteredTypes() []models.ConnectionType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]models.ConnectionType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// Open dispatches on the connection type. Missing types raise Unsupported.
func Open(ctx context.Context, conn *models.Connection, password string, logger *zap.Logger) (Driver, error) {
	registryMu.RLock()
	factory, ok := registry[conn.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, apperrors.Unsupported("connection type " + string(conn.Type))
	}
	return factory(ctx, conn, password, logger)
}
