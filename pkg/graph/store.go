// Package graph projects discovered schemas into the graph store and
// serves traversal queries for the GraphRAG planner.
package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// Store is the graph store port. Implementations must make ProjectSchema
// idempotent and atomic: applying the same schema twice yields an
// identical node/edge set, and a failed projection leaves prior graph
// state intact.
type Store interface {
	// ProjectSchema upserts the Database/Table/Column nodes and the
	// CONTAINS / HAS_COLUMN / REFERENCES / RELATES_TO edges for a schema
	// in a single transaction, then assigns communities.
	ProjectSchema(ctx context.Context, schema *models.Schema) error

	// Describe returns a textual summary of a projected schema.
	Describe(ctx context.Context, connectionID string) (string, error)

	// Paths returns up to 5 shortest relational paths between two tables.
	Paths(ctx context.Context, connectionID, fromTable, toTable string, maxDepth int) ([]models.GraphPath, error)

	// Related returns tables within maxDepth hops with distance and the
	// columns connecting them.
	Related(ctx context.Context, connectionID, tableName string, maxDepth int) ([]models.RelatedTable, error)

	// RelationsFor returns the outgoing RELATES_TO edges of a table.
	RelationsFor(ctx context.Context, connectionID, tableName string) ([]models.GraphRelation, error)

	// FindTables looks tables up by exact name, or by substring when
	// fuzzy is set.
	FindTables(ctx context.Context, connectionID, name string, fuzzy bool) ([]models.GraphEntity, error)

	// MostConnectedTables returns tables ranked by RELATES_TO degree.
	MostConnectedTables(ctx context.Context, connectionID string, limit int) ([]models.GraphEntity, error)

	// RichestTables returns tables ranked by description length.
	RichestTables(ctx context.Context, connectionID string, limit int) ([]models.GraphEntity, error)

	// Communities returns up to limit table communities.
	Communities(ctx context.Context, connectionID string, limit int) ([]models.GraphCommunity, error)

	// RunQuery executes a read-only graph query with parameters. Used by
	// the planner's sub-query execution.
	RunQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// Available reports whether the backend is configured and reachable
	// enough to attempt queries.
	Available() bool

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ParsedReference is a foreign-key target resolved from a Column's
// textual references field.
type ParsedReference struct {
	Schema string
	Table  string
	Column string
}

// ParseReference resolves a references string of form
// "[schema.]table.column" against the owning table's schema namespace.
// Strings with fewer than two dotted components are ignored.
func ParseReference(owningSchema, ref string) (ParsedReference, bool) {
	parts := strings.Split(strings.TrimSpace(ref), ".")
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return ParsedReference{}, false
		}
		return ParsedReference{Schema: owningSchema, Table: parts[0], Column: parts[1]}, true
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return ParsedReference{}, false
		}
		return ParsedReference{Schema: parts[0], Table: parts[1], Column: parts[2]}, true
	default:
		return ParsedReference{}, false
	}
}

// TableID builds the globally unique composite key of a table node.
func TableID(connectionID, schemaName, tableName string) string {
	return connectionID + "." + schemaName + "." + tableName
}

// ColumnID builds the globally unique composite key of a column node.
func ColumnID(connectionID, schemaName, tableName, columnName string) string {
	return TableID(connectionID, schemaName, tableName) + "." + columnName
}

// NamespaceCommunities assigns each table a community id derived from its
// schema namespace: the fallback when community detection is unavailable
// in the graph backend. Ids are stable: namespaces are ranked
// alphabetically.
func NamespaceCommunities(tables []models.Table) map[string]int {
	namespaces := map[string]struct{}{}
	for _, t := range tables {
		namespaces[t.SchemaName] = struct{}{}
	}
	ordered := make([]string, 0, len(namespaces))
	for ns := range namespaces {
		ordered = append(ordered, ns)
	}
	sort.Strings(ordered)
	rank := make(map[string]int, len(ordered))
	for i, ns := range ordered {
		rank[ns] = i
	}
	out := make(map[string]int, len(tables))
	for _, t := range tables {
		out[t.SchemaName+"."+t.Name] = rank[t.SchemaName]
	}
	return out
}
