package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func init() {
	Register(models.ConnectionTypeSQLServer, newSQLServerDriver)
}

type sqlserverDriver struct {
	db     *sql.DB
	dbName string
	logger *zap.Logger
}

func newSQLServerDriver(ctx context.Context, conn *models.Connection, password string, logger *zap.Logger) (Driver, error) {
	query := url.Values{}
	query.Set("database", conn.Database)
	query.Set("dial timeout", "10")
	if conn.SSL {
		query.Set("encrypt", "true")
	} else {
		query.Set("encrypt", "disable")
	}
	dsn := (&url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(conn.Username, password),
		Host:     fmt.Sprintf("%s:%d", conn.Host, conn.Port),
		RawQuery: query.Encode(),
	}).String()

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "build sqlserver config", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &sqlserverDriver{db: db, dbName: conn.Database, logger: logger.Named("sqlserver")}, nil
}

func (d *sqlserverDriver) Test(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return apperrors.Upstream("sqlserver", err)
	}
	return nil
}

func (d *sqlserverDriver) ExecuteQuery(ctx context.Context, statement string, params map[string]any) (*QueryResult, error) {
	rewritten, args, err := RewriteNamed(DialectSQLServer, statement, params)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, rewritten, args...)
	if err != nil {
		return nil, translateSQLError("sqlserver", err)
	}
	defer rows.Close()
	return scanRows(rows, "sqlserver")
}

func (d *sqlserverDriver) GetSchema(ctx context.Context, opts models.DiscoveryOptions) (*SchemaSnapshot, error) {
	snapshot := &SchemaSnapshot{DatabaseName: d.dbName}
	if err := d.db.QueryRowContext(ctx,
		"SELECT CAST(SERVERPROPERTY('productversion') AS nvarchar(128))").Scan(&snapshot.Version); err != nil {
		return nil, translateSQLError("sqlserver", err)
	}

	const tablesQuery = `
		SELECT s.name, t.name, COALESCE(p.rows, 0)
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		LEFT JOIN sys.partitions p ON p.object_id = t.object_id AND p.index_id IN (0, 1)
		ORDER BY s.name, t.name`

	rows, err := d.db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, translateSQLError("sqlserver", err)
	}
	type tableKey struct{ schema, name string }
	var keys []tableKey
	rowCounts := map[tableKey]int64{}
	for rows.Next() {
		var k tableKey
		var count int64
		if err := rows.Scan(&k.schema, &k.name, &count); err != nil {
			rows.Close()
			return nil, translateSQLError("sqlserver", err)
		}
		if !schemaIncluded(opts.Schemas, k.schema) || tableExcluded(opts.ExcludedTables, k.name) {
			continue
		}
		keys = append(keys, k)
		rowCounts[k] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translateSQLError("sqlserver", err)
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

func (d *sqlserverDriver) tableColumns(ctx context.Context, schemaName, tableName string, references map[string]string) ([]models.Column, error) {
	const query = `
		SELECT
			c.name,
			ty.name,
			c.is_nullable,
			CASE WHEN pk.column_id IS NULL THEN 0 ELSE 1 END
		FROM sys.columns c
		JOIN sys.tables t ON t.object_id = c.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.types ty ON ty.user_type_id = c.user_type_id
		LEFT JOIN (
			SELECT ic.object_id, ic.column_id
			FROM sys.index_columns ic
			JOIN sys.indexes i ON i.object_id = ic.object_id AND i.index_id = ic.index_id
			WHERE i.is_primary_key = 1
		) pk ON pk.object_id = c.object_id AND pk.column_id = c.column_id
		WHERE s.name = @p1 AND t.name = @p2
		ORDER BY c.column_id`

	rows, err := d.db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, translateSQLError("sqlserver", err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var col models.Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &col.PrimaryKey); err != nil {
			return nil, translateSQLError("sqlserver", err)
		}
		if ref, ok := references[schemaName+"."+tableName+"."+col.Name]; ok {
			col.ForeignKey = true
			col.References = ref
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (d *sqlserverDriver) foreignKeyReferences(ctx context.Context) (map[string]string, error) {
	const query = `
		SELECT
			ss.name, st.name, sc.name,
			ds.name, dt.name, dc.name
		FROM sys.foreign_key_columns fkc
		JOIN sys.tables st ON st.object_id = fkc.parent_object_id
		JOIN sys.schemas ss ON ss.schema_id = st.schema_id
		JOIN sys.columns sc ON sc.object_id = fkc.parent_object_id AND sc.column_id = fkc.parent_column_id
		JOIN sys.tables dt ON dt.object_id = fkc.referenced_object_id
		JOIN sys.schemas ds ON ds.schema_id = dt.schema_id
		JOIN sys.columns dc ON dc.object_id = fkc.referenced_object_id AND dc.column_id = fkc.referenced_column_id`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translateSQLError("sqlserver", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var srcSchema, srcTable, srcColumn, dstSchema, dstTable, dstColumn string
		if err := rows.Scan(&srcSchema, &srcTable, &srcColumn, &dstSchema, &dstTable, &dstColumn); err != nil {
			return nil, translateSQLError("sqlserver", err)
		}
		out[srcSchema+"."+srcTable+"."+srcColumn] = dstSchema + "." + dstTable + "." + dstColumn
	}
	return out, rows.Err()
}

func (d *sqlserverDriver) Close(ctx context.Context) error {
	return d.db.Close()
}
