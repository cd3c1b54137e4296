package models

// Graph projection entities. Node keys are globally unique composites of
// connection id, schema namespace and name.

// GraphEntity is a table surfaced by entity identification during GraphRAG
// planning. Relevance is in [0,1] and reflects ranking.
type GraphEntity struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Schema      string  `json:"schema"`
	Description string  `json:"description,omitempty"`
	Relevance   float64 `json:"relevance"`
}

// GraphRelation is a RELATES_TO edge between two tables, denormalized from
// the column-level foreign keys connecting them.
type GraphRelation struct {
	FromTable  string `json:"from_table"`
	ToTable    string `json:"to_table"`
	ViaColumns string `json:"via_columns"` // comma-joined source columns
	ToColumns  string `json:"to_columns"`  // comma-joined target columns
}

// GraphPath is a relational path between two tables.
type GraphPath struct {
	Tables []string `json:"tables"`
	Length int      `json:"length"`
}

// RelatedTable is a traversal result: a table within a hop bound.
type RelatedTable struct {
	Name       string   `json:"name"`
	Schema     string   `json:"schema"`
	Distance   int      `json:"distance"`
	ViaColumns []string `json:"via_columns,omitempty"`
}

// GraphCommunity is a cluster of tables found by community detection or,
// as a fallback, by shared schema namespace.
type GraphCommunity struct {
	ID     int      `json:"id"`
	Tables []string `json:"tables"`
}
