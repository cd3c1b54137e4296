package datasource

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func init() {
	Register(models.ConnectionTypePostgreSQL, newPostgresDriver)
}

type postgresDriver struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func newPostgresDriver(ctx context.Context, conn *models.Connection, password string, logger *zap.Logger) (Driver, error) {
	sslMode := "disable"
	if conn.SSL {
		sslMode = "require"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=10",
		url.QueryEscape(conn.Username), url.QueryEscape(password),
		conn.Host, conn.Port, url.PathEscape(conn.Database), sslMode)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "parse postgres config", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Upstream("postgres", err)
	}
	return &postgresDriver{pool: pool, logger: logger.Named("postgres")}, nil
}

func (d *postgresDriver) Test(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return apperrors.Upstream("postgres", err)
	}
	return nil
}

func (d *postgresDriver) ExecuteQuery(ctx context.Context, statement string, params map[string]any) (*QueryResult, error) {
	rewritten, args, err := RewriteNamed(DialectPostgres, statement, params)
	if err != nil {
		return nil, err
	}

	rows, err := d.pool.Query(ctx, rewritten, args...)
	if err != nil {
		return nil, translateSQLError("postgres", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	result := &QueryResult{Columns: columns}
	for rows.Next() && result.RowCount < MaxQueryRows {
		values, err := rows.Values()
		if err != nil {
			return nil, translateSQLError("postgres", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, translateSQLError("postgres", err)
	}
	return result, nil
}

func (d *postgresDriver) GetSchema(ctx context.Context, opts models.DiscoveryOptions) (*SchemaSnapshot, error) {
	snapshot := &SchemaSnapshot{}
	if err := d.pool.QueryRow(ctx, "SHOW server_version").Scan(&snapshot.Version); err != nil {
		return nil, translateSQLError("postgres", err)
	}
	if err := d.pool.QueryRow(ctx, "SELECT current_database()").Scan(&snapshot.DatabaseName); err != nil {
		return nil, translateSQLError("postgres", err)
	}

	// pg_class is resolved through its namespace oid; joining on relname
	// alone would match same-named tables from every schema.
	tablesQuery := `
		SELECT t.table_schema, t.table_name, COALESCE(c.reltuples::bigint, 0) AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY t.table_schema, t.table_name`

	rows, err := d.pool.Query(ctx, tablesQuery)
	if err != nil {
		return nil, translateSQLError("postgres", err)
	}
	type tableKey struct{ schema, name string }
	var keys []tableKey
	rowCounts := map[tableKey]int64{}
	for rows.Next() {
		var k tableKey
		var count int64
		if err := rows.Scan(&k.schema, &k.name, &count); err != nil {
			rows.Close()
			return nil, translateSQLError("postgres", err)
		}
		if !schemaIncluded(opts.Schemas, k.schema) || tableExcluded(opts.ExcludedTables, k.name) {
			continue
		}
		if _, seen := rowCounts[k]; seen {
			continue
		}
		keys = append(keys, k)
		rowCounts[k] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translateSQLError("postgres", err)
	}

	references, err := d.foreignKeyReferences(ctx)
	if err != nil {
		return nil, err
	}

	for _, k := range keys {
		table := models.Table{SchemaName: k.schema, Name: k.name, RowCount: rowCounts[k]}
		columns, err := d.tableColumns(ctx, k.schema, k.name, references)
		if err != nil {
			return nil, err
		}
		table.Columns = columns
		snapshot.Tables = append(snapshot.Tables, table)
	}
	return snapshot, nil
}

func (d *postgresDriver) tableColumns(ctx context.Context, schemaName, tableName string, references map[string]string) ([]models.Column, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
				  ON kcu.constraint_name = tc.constraint_name
				 AND kcu.table_schema = tc.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
				  AND tc.table_schema = c.table_schema
				  AND tc.table_name = c.table_name
				  AND kcu.column_name = c.column_name
			) AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := d.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, translateSQLError("postgres", err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var col models.Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &col.PrimaryKey); err != nil {
			return nil, translateSQLError("postgres", err)
		}
		if ref, ok := references[schemaName+"."+tableName+"."+col.Name]; ok {
			col.ForeignKey = true
			col.References = ref
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// foreignKeyReferences maps "schema.table.column" of the referencing side
// to the "schema.table.column" it points at.
func (d *postgresDriver) foreignKeyReferences(ctx context.Context) (map[string]string, error) {
	const query = `
		SELECT
			tc.table_schema, tc.table_name, kcu.column_name,
			ccu.table_schema, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		 AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, translateSQLError("postgres", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var srcSchema, srcTable, srcColumn, dstSchema, dstTable, dstColumn string
		if err := rows.Scan(&srcSchema, &srcTable, &srcColumn, &dstSchema, &dstTable, &dstColumn); err != nil {
			return nil, translateSQLError("postgres", err)
		}
		out[srcSchema+"."+srcTable+"."+srcColumn] = dstSchema + "." + dstTable + "." + dstColumn
	}
	return out, rows.Err()
}

func (d *postgresDriver) Close(ctx context.Context) error {
	d.pool.Close()
	return nil
}

func schemaIncluded(schemas []string, name string) bool {
	if len(schemas) == 0 {
		return true
	}
	for _, s := range schemas {
		if s == name {
			return true
		}
	}
	return false
}

func tableExcluded(excluded []string, name string) bool {
	for _, e := range excluded {
		if e == name {
			return true
		}
	}
	return false
}
