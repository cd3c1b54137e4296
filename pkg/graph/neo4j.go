package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// Neo4jStore implements Store over the Bolt protocol.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore connects to the graph store and ensures the uniqueness
// constraints projections rely on.
func NewNeo4jStore(ctx context.Context, uri, user, password string, logger *zap.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create graph driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, apperrors.Upstream("graph store", err)
	}

	store := &Neo4jStore{driver: driver, logger: logger.Named("graph")}
	if err := store.ensureConstraints(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{})
}

// ensureConstraints creates the uniqueness constraints on node keys.
// Constraint DDL auto-commits, so it runs outside projection transactions.
func (s *Neo4jStore) ensureConstraints(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	stmts := []string{
		"CREATE CONSTRAINT database_connection_id IF NOT EXISTS FOR (d:Database) REQUIRE d.connection_id IS UNIQUE",
		"CREATE CONSTRAINT table_table_id IF NOT EXISTS FOR (t:Table) REQUIRE t.table_id IS UNIQUE",
		"CREATE CONSTRAINT column_column_id IF NOT EXISTS FOR (c:Column) REQUIRE c.column_id IS UNIQUE",
	}
	for _, stmt := range stmts {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure graph constraints: %w", err)
		}
	}
	return nil
}

// ProjectSchema applies the six projection steps. Steps 2-5 plus the
// community fallback run in one write transaction; on failure the prior
// graph state stays intact. Native community detection (GDS Louvain) is
// attempted afterwards, best-effort.
func (s *Neo4jStore) ProjectSchema(ctx context.Context, schema *models.Schema) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	communities := NamespaceCommunities(schema.Tables)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Database {connection_id: $cid})
			SET d.name = $name, d.db_type = $dbType`,
			map[string]any{"cid": schema.ConnectionID, "name": schema.Name, "dbType": schema.DBType}); err != nil {
			return nil, err
		}

		for _, table := range schema.Tables {
			tableID := TableID(schema.ConnectionID, table.SchemaName, table.Name)
			if _, err := tx.Run(ctx, `
				MATCH (d:Database {connection_id: $cid})
				MERGE (t:Table {table_id: $tableId})
				SET t.connection_id = $cid, t.schema = $schema, t.name = $name,
				    t.description = $description, t.row_count = $rowCount,
				    t.community = $community
				MERGE (d)-[:CONTAINS]->(t)`,
				map[string]any{
					"cid": schema.ConnectionID, "tableId": tableID,
					"schema": table.SchemaName, "name": table.Name,
					"description": table.Description, "rowCount": table.RowCount,
					"community": communities[table.SchemaName+"."+table.Name],
				}); err != nil {
				return nil, err
			}

			for _, col := range table.Columns {
				columnID := ColumnID(schema.ConnectionID, table.SchemaName, table.Name, col.Name)
				if _, err := tx.Run(ctx, `
					MATCH (t:Table {table_id: $tableId})
					MERGE (c:Column {column_id: $columnId})
					SET c.connection_id = $cid, c.name = $name, c.data_type = $dataType,
					    c.nullable = $nullable, c.primary_key = $primaryKey,
					    c.foreign_key = $foreignKey
					MERGE (t)-[:HAS_COLUMN]->(c)`,
					map[string]any{
						"tableId": tableID, "columnId": columnID, "cid": schema.ConnectionID,
						"name": col.Name, "dataType": col.DataType, "nullable": col.Nullable,
						"primaryKey": col.PrimaryKey, "foreignKey": col.ForeignKey,
					}); err != nil {
					return nil, err
				}
			}
		}

		// Foreign-key edges. References with fewer than two dotted
		// components are ignored.
		for _, table := range schema.Tables {
			for _, col := range table.Columns {
				if col.References == "" {
					continue
				}
				target, ok := ParseReference(table.SchemaName, col.References)
				if !ok {
					continue
				}
				srcColumn := ColumnID(schema.ConnectionID, table.SchemaName, table.Name, col.Name)
				dstColumn := ColumnID(schema.ConnectionID, target.Schema, target.Table, target.Column)
				if _, err := tx.Run(ctx, `
					MATCH (src:Column {column_id: $src})
					MATCH (dst:Column {column_id: $dst})
					MERGE (src)-[:REFERENCES]->(dst)`,
					map[string]any{"src": srcColumn, "dst": dstColumn}); err != nil {
					return nil, err
				}

				// Denormalized table-to-table edge; merges append the new
				// via/to columns to the comma-joined annotation without
				// duplicating entries.
				srcTable := TableID(schema.ConnectionID, table.SchemaName, table.Name)
				dstTable := TableID(schema.ConnectionID, target.Schema, target.Table)
				if _, err := tx.Run(ctx, `
					MATCH (t1:Table {table_id: $src})
					MATCH (t2:Table {table_id: $dst})
					MERGE (t1)-[r:RELATES_TO]->(t2)
					ON CREATE SET r.via_column = $via, r.to_column = $to
					ON MATCH SET
						r.via_column = CASE WHEN $via IN split(r.via_column, ',')
							THEN r.via_column ELSE r.via_column + ',' + $via END,
						r.to_column = CASE WHEN $to IN split(r.to_column, ',')
							THEN r.to_column ELSE r.to_column + ',' + $to END`,
					map[string]any{"src": srcTable, "dst": dstTable, "via": col.Name, "to": target.Column}); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return apperrors.Upstream("graph store", err)
	}

	s.tryNativeCommunities(ctx, schema.ConnectionID)
	return nil
}

// tryNativeCommunities runs Louvain when the GDS plugin is installed,
// overwriting the namespace fallback assignment. Failure leaves the
// fallback in place.
func (s *Neo4jStore) tryNativeCommunities(ctx context.Context, connectionID string) {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		CALL gds.graph.project.cypher(
			'schema_' + $cid,
			'MATCH (t:Table {connection_id: $cid}) RETURN id(t) AS id',
			'MATCH (a:Table {connection_id: $cid})-[:RELATES_TO]-(b:Table {connection_id: $cid}) RETURN id(a) AS source, id(b) AS target',
			{parameters: {cid: $cid}})
		YIELD graphName
		CALL gds.louvain.stream(graphName) YIELD nodeId, communityId
		WITH gds.util.asNode(nodeId) AS t, communityId, graphName
		SET t.community = communityId
		WITH graphName
		CALL gds.graph.drop(graphName) YIELD graphName AS dropped
		RETURN dropped`,
		map[string]any{"cid": connectionID})
	if err != nil {
		s.logger.Debug("native community detection unavailable, keeping namespace fallback",
			zap.String("connection_id", connectionID), zap.Error(err))
	}
}

func (s *Neo4jStore) Describe(ctx context.Context, connectionID string) (string, error) {
	records, err := s.RunQuery(ctx, `
		MATCH (d:Database {connection_id: $cid})-[:CONTAINS]->(t:Table)
		OPTIONAL MATCH (t)-[r:RELATES_TO]->()
		RETURN d.name AS database, d.db_type AS dbType,
		       count(DISTINCT t) AS tables, count(r) AS relations,
		       collect(DISTINCT t.name)[..25] AS tableNames`,
		map[string]any{"cid": connectionID})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", apperrors.NotFound("graph projection", connectionID)
	}
	rec := records[0]

	var names []string
	if raw, ok := rec["tableNames"].([]any); ok {
		for _, n := range raw {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
	}
	return fmt.Sprintf("Database %v (%v): %v tables, %v relationships. Tables: %s",
		rec["database"], rec["dbType"], rec["tables"], rec["relations"], strings.Join(names, ", ")), nil
}

func (s *Neo4jStore) Paths(ctx context.Context, connectionID, fromTable, toTable string, maxDepth int) ([]models.GraphPath, error) {
	if maxDepth < 1 || maxDepth > 10 {
		maxDepth = 3
	}
	// Variable-length bounds cannot be parameterized; maxDepth is a
	// validated small integer.
	query := fmt.Sprintf(`
		MATCH (a:Table {connection_id: $cid, name: $from}),
		      (b:Table {connection_id: $cid, name: $to}),
		      p = allShortestPaths((a)-[:RELATES_TO*..%d]-(b))
		RETURN [n IN nodes(p) | n.name] AS tables, length(p) AS hops
		LIMIT 5`, maxDepth)

	records, err := s.RunQuery(ctx, query, map[string]any{
		"cid": connectionID, "from": fromTable, "to": toTable,
	})
	if err != nil {
		return nil, err
	}

	paths := make([]models.GraphPath, 0, len(records))
	for _, rec := range records {
		var path models.GraphPath
		if raw, ok := rec["tables"].([]any); ok {
			for _, n := range raw {
				if name, ok := n.(string); ok {
					path.Tables = append(path.Tables, name)
				}
			}
		}
		if hops, ok := rec["hops"].(int64); ok {
			path.Length = int(hops)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *Neo4jStore) Related(ctx context.Context, connectionID, tableName string, maxDepth int) ([]models.RelatedTable, error) {
	if maxDepth < 1 || maxDepth > 10 {
		maxDepth = 2
	}
	query := fmt.Sprintf(`
		MATCH (a:Table {connection_id: $cid, name: $name}),
		      p = shortestPath((a)-[:RELATES_TO*1..%d]-(b:Table))
		WHERE b.connection_id = $cid AND b <> a
		WITH b, length(p) AS distance,
		     [rel IN relationships(p) | rel.via_column] AS vias
		RETURN b.name AS name, b.schema AS schema, distance, vias
		ORDER BY distance, name`, maxDepth)

	records, err := s.RunQuery(ctx, query, map[string]any{"cid": connectionID, "name": tableName})
	if err != nil {
		return nil, err
	}

	out := make([]models.RelatedTable, 0, len(records))
	for _, rec := range records {
		rt := models.RelatedTable{}
		if v, ok := rec["name"].(string); ok {
			rt.Name = v
		}
		if v, ok := rec["schema"].(string); ok {
			rt.Schema = v
		}
		if v, ok := rec["distance"].(int64); ok {
			rt.Distance = int(v)
		}
		if raw, ok := rec["vias"].([]any); ok {
			for _, via := range raw {
				if v, ok := via.(string); ok && v != "" {
					rt.ViaColumns = append(rt.ViaColumns, v)
				}
			}
		}
		out = append(out, rt)
	}
	return out, nil
}

func (s *Neo4jStore) RelationsFor(ctx context.Context, connectionID, tableName string) ([]models.GraphRelation, error) {
	records, err := s.RunQuery(ctx, `
		MATCH (a:Table {connection_id: $cid, name: $name})-[r:RELATES_TO]->(b:Table)
		RETURN a.name AS fromTable, b.name AS toTable,
		       r.via_column AS via, r.to_column AS to`,
		map[string]any{"cid": connectionID, "name": tableName})
	if err != nil {
		return nil, err
	}

	out := make([]models.GraphRelation, 0, len(records))
	for _, rec := range records {
		rel := models.GraphRelation{}
		if v, ok := rec["fromTable"].(string); ok {
			rel.FromTable = v
		}
		if v, ok := rec["toTable"].(string); ok {
			rel.ToTable = v
		}
		if v, ok := rec["via"].(string); ok {
			rel.ViaColumns = v
		}
		if v, ok := rec["to"].(string); ok {
			rel.ToColumns = v
		}
		out = append(out, rel)
	}
	return out, nil
}

func (s *Neo4jStore) FindTables(ctx context.Context, connectionID, name string, fuzzy bool) ([]models.GraphEntity, error) {
	query := `
		MATCH (t:Table {connection_id: $cid})
		WHERE t.name = $name
		RETURN t.table_id AS id, t.name AS name, t.schema AS schema, t.description AS description
		LIMIT 10`
	if fuzzy {
		query = `
		MATCH (t:Table {connection_id: $cid})
		WHERE toLower(t.name) CONTAINS toLower($name)
		RETURN t.table_id AS id, t.name AS name, t.schema AS schema, t.description AS description
		LIMIT 10`
	}
	records, err := s.RunQuery(ctx, query, map[string]any{"cid": connectionID, "name": name})
	if err != nil {
		return nil, err
	}
	return toEntities(records), nil
}

func (s *Neo4jStore) MostConnectedTables(ctx context.Context, connectionID string, limit int) ([]models.GraphEntity, error) {
	if limit <= 0 {
		limit = 5
	}
	records, err := s.RunQuery(ctx, `
		MATCH (t:Table {connection_id: $cid})
		OPTIONAL MATCH (t)-[r:RELATES_TO]-()
		WITH t, count(r) AS degree
		WHERE degree > 0
		RETURN t.table_id AS id, t.name AS name, t.schema AS schema,
		       t.description AS description
		ORDER BY degree DESC
		LIMIT $limit`,
		map[string]any{"cid": connectionID, "limit": limit})
	if err != nil {
		return nil, err
	}
	return toEntities(records), nil
}

func (s *Neo4jStore) RichestTables(ctx context.Context, connectionID string, limit int) ([]models.GraphEntity, error) {
	if limit <= 0 {
		limit = 3
	}
	records, err := s.RunQuery(ctx, `
		MATCH (t:Table {connection_id: $cid})
		RETURN t.table_id AS id, t.name AS name, t.schema AS schema,
		       t.description AS description
		ORDER BY size(coalesce(t.description, '')) DESC
		LIMIT $limit`,
		map[string]any{"cid": connectionID, "limit": limit})
	if err != nil {
		return nil, err
	}
	return toEntities(records), nil
}

func (s *Neo4jStore) Communities(ctx context.Context, connectionID string, limit int) ([]models.GraphCommunity, error) {
	if limit <= 0 {
		limit = 5
	}
	records, err := s.RunQuery(ctx, `
		MATCH (t:Table {connection_id: $cid})
		WHERE t.community IS NOT NULL
		WITH t.community AS id, collect(t.name) AS tables
		RETURN id, tables
		ORDER BY size(tables) DESC
		LIMIT $limit`,
		map[string]any{"cid": connectionID, "limit": limit})
	if err != nil {
		return nil, err
	}

	out := make([]models.GraphCommunity, 0, len(records))
	for _, rec := range records {
		community := models.GraphCommunity{}
		if v, ok := rec["id"].(int64); ok {
			community.ID = int(v)
		}
		if raw, ok := rec["tables"].([]any); ok {
			for _, n := range raw {
				if name, ok := n.(string); ok {
					community.Tables = append(community.Tables, name)
				}
			}
		}
		out = append(out, community)
	}
	return out, nil
}

func (s *Neo4jStore) RunQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var records []map[string]any
		for res.Next(ctx) {
			records = append(records, res.Record().AsMap())
		}
		return records, res.Err()
	})
	if err != nil {
		return nil, apperrors.Upstream("graph store", err)
	}
	records, _ := result.([]map[string]any)
	return records, nil
}

func (s *Neo4jStore) Available() bool { return s != nil && s.driver != nil }

func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return apperrors.Upstream("graph store", err)
	}
	return nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func toEntities(records []map[string]any) []models.GraphEntity {
	out := make([]models.GraphEntity, 0, len(records))
	for _, rec := range records {
		e := models.GraphEntity{}
		if v, ok := rec["id"].(string); ok {
			e.ID = v
		}
		if v, ok := rec["name"].(string); ok {
			e.Name = v
		}
		if v, ok := rec["schema"].(string); ok {
			e.Schema = v
		}
		if v, ok := rec["description"].(string); ok {
			e.Description = v
		}
		out = append(out, e)
	}
	return out
}

var _ Store = (*Neo4jStore)(nil)
