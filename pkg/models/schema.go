package models

import "time"

// Extraction caps enforced during schema discovery. Breaching a cap drops
// the excess, never the job; a truncation marker plus a structured warning
// accompany every drop.
const (
	MaxTablesPerSchema  = 500
	MaxColumnsPerTable  = 300
	MaxIdentifierLength = 100
)

// SchemaStatus mirrors the discovery job outcome on the persisted schema.
type SchemaStatus string

const (
	SchemaStatusPending    SchemaStatus = "pending"
	SchemaStatusInProgress SchemaStatus = "in_progress"
	SchemaStatusCompleted  SchemaStatus = "completed"
	SchemaStatusFailed     SchemaStatus = "failed"
)

// Schema is the structural description of a target database as captured by
// discovery. Exactly one schema exists per connection (upsert by
// connection_id; last writer wins).
type Schema struct {
	ID                 string       `json:"id" bson:"_id"`
	ConnectionID       string       `json:"connection_id" bson:"connection_id"`
	Name               string       `json:"name" bson:"name"`
	DBType             string       `json:"db_type" bson:"db_type"`
	Version            string       `json:"version,omitempty" bson:"version,omitempty"`
	Status             SchemaStatus `json:"status" bson:"status"`
	DiscoveryDate      *time.Time   `json:"discovery_date,omitempty" bson:"discovery_date,omitempty"`
	VectorID           string       `json:"vector_id,omitempty" bson:"vector_id,omitempty"`
	Error              string       `json:"error,omitempty" bson:"error,omitempty"`
	VectorizationError string       `json:"vectorization_error,omitempty" bson:"vectorization_error,omitempty"`
	Tables             []Table      `json:"tables" bson:"tables"`
}

// Table carries namespace, row count and an ordered column sequence.
type Table struct {
	SchemaName  string   `json:"schema" bson:"schema"`
	Name        string   `json:"name" bson:"name"`
	RowCount    int64    `json:"row_count" bson:"row_count"`
	Description string   `json:"description,omitempty" bson:"description,omitempty"`
	Columns     []Column `json:"columns" bson:"columns"`
}

// Column describes a single column. References, when set, is a textual
// pointer of form "schema.table.column" (the schema component optional).
type Column struct {
	Name        string `json:"name" bson:"name"`
	DataType    string `json:"data_type" bson:"data_type"`
	Nullable    bool   `json:"nullable" bson:"nullable"`
	PrimaryKey  bool   `json:"primary_key" bson:"primary_key"`
	ForeignKey  bool   `json:"foreign_key" bson:"foreign_key"`
	References  string `json:"references,omitempty" bson:"references,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
}

// DiscoveryOptions narrow what a discovery run extracts.
type DiscoveryOptions struct {
	Schemas             []string `json:"schemas,omitempty"`
	ExcludedTables      []string `json:"excluded_tables,omitempty"`
	ExcludedCollections []string `json:"excluded_collections,omitempty"`
	Database            string   `json:"database,omitempty"`
	SampleSize          int      `json:"sample_size,omitempty"`
	Analyze             bool     `json:"analyze,omitempty"`
}

// SchemaQuerySuggestion is an analyzer artifact: a ready-to-run SQL
// statement illustrating how discovered tables join.
type SchemaQuerySuggestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	SQL         string   `json:"sql"`
	Tables      []string `json:"tables"`
}
