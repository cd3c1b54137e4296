package vector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
)

// WeaviateStore is the native vector store handle. Objects carry their
// logical doc_id as a property; the Weaviate object id is a deterministic
// UUID derived from it so writes stay idempotent.
type WeaviateStore struct {
	client   *weaviate.Client
	embedder Embedder
	logger   *zap.Logger
}

// NewWeaviateStore builds a native handle from the store URL and optional
// API key.
func NewWeaviateStore(rawURL, apiKey string, embedder Embedder, logger *zap.Logger) (*WeaviateStore, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, apperrors.Validation(fmt.Sprintf("invalid vector store URL %q", rawURL))
	}

	cfg := weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme}
	if apiKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: apiKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateStore{
		client:   client,
		embedder: embedder,
		logger:   logger.Named("weaviate"),
	}, nil
}

// className maps a collection name to a Weaviate class (must start with an
// uppercase letter).
func className(collection string) string {
	parts := strings.Split(collection, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

// objectID derives a stable UUID from the logical doc id.
func objectID(docID string) string {
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(docID)).String()
}

func (s *WeaviateStore) StoreText(ctx context.Context, collection, docID, text string, metadata map[string]string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return apperrors.Upstream("embedder", err)
	}

	props := map[string]any{
		"doc_id": docID,
		"text":   text,
	}
	for k, v := range metadata {
		props["meta_"+k] = v
	}

	id := objectID(docID)
	cls := className(collection)

	// Delete-then-create keeps the write idempotent; a missing object on
	// delete is not an error.
	_ = s.client.Data().Deleter().WithClassName(cls).WithID(id).Do(ctx)

	_, err = s.client.Data().Creator().
		WithClassName(cls).
		WithID(id).
		WithProperties(props).
		WithVector(vec).
		Do(ctx)
	if err != nil {
		return apperrors.Upstream("vector store", err)
	}
	return nil
}

func (s *WeaviateStore) Search(ctx context.Context, collection, query string, filter SearchFilter, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 10
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.Upstream("embedder", err)
	}

	cls := className(collection)
	get := s.client.GraphQL().Get().
		WithClassName(cls).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)).
		WithLimit(limit).
		WithFields(
			graphql.Field{Name: "doc_id"},
			graphql.Field{Name: "text"},
			graphql.Field{Name: "meta_owner_id"},
			graphql.Field{Name: "meta_area_id"},
			graphql.Field{Name: "meta_connection_id"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
		)

	if where := buildWhere(filter); where != nil {
		get = get.WithWhere(where)
	}

	res, err := get.Do(ctx)
	if err != nil {
		return nil, apperrors.Upstream("vector store", err)
	}
	for _, gqlErr := range res.Errors {
		return nil, apperrors.Upstream("vector store", fmt.Errorf("graphql: %s", gqlErr.Message))
	}

	docs := parseGraphQLData(res.Data, cls)
	SortByScore(docs)
	return docs, nil
}

func buildWhere(filter SearchFilter) *filters.WhereBuilder {
	var clauses []*filters.WhereBuilder
	if filter.OwnerID != "" {
		clauses = append(clauses, filters.Where().
			WithPath([]string{"meta_owner_id"}).WithOperator(filters.Equal).WithValueText(filter.OwnerID))
	}
	if filter.AreaID != "" {
		clauses = append(clauses, filters.Where().
			WithPath([]string{"meta_area_id"}).WithOperator(filters.Equal).WithValueText(filter.AreaID))
	}
	if filter.DocID != "" {
		clauses = append(clauses, filters.Where().
			WithPath([]string{"doc_id"}).WithOperator(filters.Equal).WithValueText(filter.DocID))
	}
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(clauses)
	}
}

// parseGraphQLData rewraps the typed GraphQL payload before unpacking,
// since the client returns JSONObject values rather than plain any.
func parseGraphQLData(data map[string]models.JSONObject, class string) []Document {
	plain := make(map[string]any, len(data))
	for k, v := range data {
		plain[k] = v
	}
	return parseGetResponse(plain, class)
}

// parseGetResponse unpacks the nested GraphQL Get payload.
func parseGetResponse(data map[string]any, class string) []Document {
	out := []Document{}
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return out
	}
	items, ok := get[class].([]any)
	if !ok {
		return out
	}
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		doc := Document{Metadata: map[string]string{}}
		if v, ok := obj["doc_id"].(string); ok {
			doc.DocID = v
		}
		if v, ok := obj["text"].(string); ok {
			doc.Text = v
		}
		for key, metaKey := range map[string]string{
			"meta_owner_id":      "owner_id",
			"meta_area_id":       "area_id",
			"meta_connection_id": "connection_id",
		} {
			if v, ok := obj[key].(string); ok && v != "" {
				doc.Metadata[metaKey] = v
			}
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			if c, ok := add["certainty"].(float64); ok {
				doc.Score = c
			}
		}
		out = append(out, doc)
	}
	return out
}

func (s *WeaviateStore) Ping(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return apperrors.Upstream("vector store", err)
	}
	if !ready {
		return apperrors.Upstream("vector store", fmt.Errorf("not ready"))
	}
	return nil
}

func (s *WeaviateStore) Close() error { return nil }

var _ Store = (*WeaviateStore)(nil)
