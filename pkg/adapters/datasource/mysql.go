package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func init() {
	Register(models.ConnectionTypeMySQL, newMySQLDriver)
}

type mysqlDriver struct {
	db     *sql.DB
	dbName string
	logger *zap.Logger
}

func newMySQLDriver(ctx context.Context, conn *models.Connection, password string, logger *zap.Logger) (Driver, error) {
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	cfg.DBName = conn.Database
	cfg.Timeout = 10 * time.Second
	cfg.ParseTime = true
	if conn.SSL {
		cfg.TLSConfig = "true"
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "build mysql config", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &mysqlDriver{db: db, dbName: conn.Database, logger: logger.Named("mysql")}, nil
}

func (d *mysqlDriver) Test(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return apperrors.Upstream("mysql", err)
	}
	return nil
}

func (d *mysqlDriver) ExecuteQuery(ctx context.Context, statement string, params map[string]any) (*QueryResult, error) {
	rewritten, args, err := RewriteNamed(DialectMySQL, statement, params)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, rewritten, args...)
	if err != nil {
		return nil, translateSQLError("mysql", err)
	}
	defer rows.Close()
	return scanRows(rows, "mysql")
}

func (d *mysqlDriver) GetSchema(ctx context.Context, opts models.DiscoveryOptions) (*SchemaSnapshot, error) {
	snapshot := &SchemaSnapshot{DatabaseName: d.dbName}
	if err := d.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&snapshot.Version); err != nil {
		return nil, translateSQLError("mysql", err)
	}

	const tablesQuery = `
		SELECT table_name, COALESCE(table_rows, 0)
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := d.db.QueryContext(ctx, tablesQuery, d.dbName)
	if err != nil {
		return nil, translateSQLError("mysql", err)
	}
	var names []string
	rowCounts := map[string]int64{}
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			rows.Close()
			return nil, translateSQLError("mysql", err)
		}
		if tableExcluded(opts.ExcludedTables, name) {
			continue
		}
		names = append(names, name)
		rowCounts[name] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translateSQLError("mysql", err)
	}

	for _, name := range names {
		// MySQL has no separate namespace level; the database name acts
		// as the schema namespace.
		table := models.Table{SchemaName: d.dbName, Name: name, RowCount: rowCounts[name]}
		columns, err := d.tableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		table.Columns = columns
		snapshot.Tables = append(snapshot.Tables, table)
	}
	return snapshot, nil
}

func (d *mysqlDriver) tableColumns(ctx context.Context, tableName string) ([]models.Column, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			c.column_key = 'PRI',
			k.referenced_table_schema,
			k.referenced_table_name,
			k.referenced_column_name
		FROM information_schema.columns c
		LEFT JOIN information_schema.key_column_usage k
		  ON k.table_schema = c.table_schema
		 AND k.table_name = c.table_name
		 AND k.column_name = c.column_name
		 AND k.referenced_table_name IS NOT NULL
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position`

	rows, err := d.db.QueryContext(ctx, query, d.dbName, tableName)
	if err != nil {
		return nil, translateSQLError("mysql", err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var col models.Column
		var refSchema, refTable, refColumn sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &col.PrimaryKey, &refSchema, &refTable, &refColumn); err != nil {
			return nil, translateSQLError("mysql", err)
		}
		if refTable.Valid && refColumn.Valid {
			col.ForeignKey = true
			col.References = refSchema.String + "." + refTable.String + "." + refColumn.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (d *mysqlDriver) Close(ctx context.Context) error {
	return d.db.Close()
}

// scanRows reads a database/sql result set into the wire shape, capped at
// MaxQueryRows. Byte slices become strings so JSON output stays readable.
func scanRows(rows *sql.Rows, service string) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, translateSQLError(service, err)
	}

	result := &QueryResult{Columns: columns}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() && result.RowCount < MaxQueryRows {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, translateSQLError(service, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, translateSQLError(service, err)
	}
	return result, nil
}

func translateSQLError(service string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return apperrors.Timeout(service + " query")
	}
	return apperrors.Upstream(service, err)
}
