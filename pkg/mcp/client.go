package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

// Client type tags carried on every response so callers can observe
// which path handled the call.
const (
	ClientTypeNative = "native"
	ClientTypeHTTP   = "http"
)

// FindOptions narrows a find_relevant call.
type FindOptions struct {
	EmbeddingType string
	OwnerID       string
	AreaID        string
	Limit         int
}

// StoreAck acknowledges a stored document.
type StoreAck struct {
	DocID      string `json:"doc_id"`
	Collection string `json:"collection"`
	ClientType string `json:"client_type"`
}

// FindResult carries similarity hits plus the handling path.
type FindResult struct {
	Results    []RelevantFragment `json:"results"`
	ClientType string             `json:"client_type"`
}

// ContextsResult lists active contexts plus the handling path.
type ContextsResult struct {
	Contexts   []*models.Context `json:"contexts"`
	ClientType string            `json:"client_type"`
}

// Client is the runtime surface shared by the embedded and HTTP paths.
// The two implementations are functionally interchangeable, including
// the metadata.type filter on active-context listing.
type Client interface {
	StoreDocument(ctx context.Context, information string, metadata map[string]string) (*StoreAck, error)
	FindRelevant(ctx context.Context, query string, opts FindOptions) (*FindResult, error)
	ActiveContexts(ctx context.Context, metadataType string) (*ContextsResult, error)
	ClientType() string
}

// EmbeddedClient calls the runtime in-process.
type EmbeddedClient struct {
	registry *Registry
	store    vector.Store
}

func NewEmbeddedClient(registry *Registry, store vector.Store) *EmbeddedClient {
	return &EmbeddedClient{registry: registry, store: store}
}

func (c *EmbeddedClient) ClientType() string { return ClientTypeNative }

func (c *EmbeddedClient) StoreDocument(ctx context.Context, information string, metadata map[string]string) (*StoreAck, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	if active := c.registry.ActiveContexts(); len(active) > 0 {
		metadata["context_id"] = active[0].ID
	}

	collection := vector.CollectionGeneral
	if metadata["embedding_type"] == "personal" {
		collection = vector.CollectionPersonal
	}

	docID := uuid.NewString()
	metadata["doc_id"] = docID
	if err := c.store.StoreText(ctx, collection, docID, information, metadata); err != nil {
		return nil, err
	}
	return &StoreAck{DocID: docID, Collection: collection, ClientType: ClientTypeNative}, nil
}

func (c *EmbeddedClient) FindRelevant(ctx context.Context, query string, opts FindOptions) (*FindResult, error) {
	collection := vector.CollectionGeneral
	if opts.EmbeddingType == "personal" {
		collection = vector.CollectionPersonal
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	docs, err := c.store.Search(ctx, collection, query, vector.SearchFilter{
		OwnerID: opts.OwnerID,
		AreaID:  opts.AreaID,
	}, limit)
	if err != nil {
		return nil, err
	}

	result := &FindResult{ClientType: ClientTypeNative, Results: make([]RelevantFragment, 0, len(docs))}
	for _, doc := range docs {
		result.Results = append(result.Results, RelevantFragment{
			Text:     doc.Text,
			Score:    doc.Score,
			Metadata: doc.Metadata,
		})
	}
	return result, nil
}

func (c *EmbeddedClient) ActiveContexts(ctx context.Context, metadataType string) (*ContextsResult, error) {
	return &ContextsResult{
		Contexts:   c.registry.ActiveContextsByType(metadataType),
		ClientType: ClientTypeNative,
	}, nil
}

var _ Client = (*EmbeddedClient)(nil)
