// Package vector abstracts the vector store behind a narrow port with two
// implementations: a native Weaviate handle and a remote-embedder HTTP
// fallback that writes on the platform's behalf.
package vector

import (
	"context"
	"sort"
)

// Collection names used by the platform.
const (
	CollectionDatabaseSchemas = "database_schemas"
	CollectionGeneral         = "general"
	CollectionPersonal        = "personal"
)

// Document is a stored or retrieved vector record.
type Document struct {
	DocID    string            `json:"doc_id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchFilter narrows similarity searches by record metadata.
type SearchFilter struct {
	OwnerID string
	AreaID  string
	DocID   string
}

// Embedder turns text into a vector. The remote embedding service is the
// canonical implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector store port.
type Store interface {
	// StoreText embeds and persists a document under the given id.
	StoreText(ctx context.Context, collection, docID, text string, metadata map[string]string) error

	// Search runs a similarity search for the query text, filtered by the
	// provided metadata, returning up to limit documents ordered by
	// descending score.
	Search(ctx context.Context, collection, query string, filter SearchFilter, limit int) ([]Document, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying handle.
	Close() error
}

// SortByScore orders documents by descending score, breaking ties by
// document id lexicographically.
func SortByScore(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
}
