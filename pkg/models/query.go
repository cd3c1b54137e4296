package models

import "time"

// Source is a retrieved fragment cited in an answer. Source lists are
// ordered by descending score; ties break by document id lexicographically.
type Source struct {
	DocID    string            `json:"doc_id" bson:"doc_id"`
	Score    float64           `json:"score" bson:"score"`
	Text     string            `json:"text" bson:"text"`
	Metadata map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// QueryRecord is the persisted history entry for one answered query.
type QueryRecord struct {
	ID               string            `json:"id" bson:"_id"`
	Query            string            `json:"query" bson:"query"`
	UserID           string            `json:"user_id,omitempty" bson:"user_id,omitempty"`
	AreaIDs          []string          `json:"area_ids,omitempty" bson:"area_ids,omitempty"`
	ConnectionID     string            `json:"connection_id,omitempty" bson:"connection_id,omitempty"`
	IncludePersonal  bool              `json:"include_personal" bson:"include_personal"`
	ProviderID       string            `json:"provider_id,omitempty" bson:"provider_id,omitempty"`
	QueryType        string            `json:"query_type,omitempty" bson:"query_type,omitempty"`
	Answer           string            `json:"answer" bson:"answer"`
	Sources          []Source          `json:"sources" bson:"sources"`
	ProcessingTimeMS int64             `json:"processing_time_ms" bson:"processing_time_ms"`
	ProcessingInfo   map[string]string `json:"processing_info,omitempty" bson:"processing_info,omitempty"`
	Timestamp        time.Time         `json:"timestamp" bson:"timestamp"`
}
