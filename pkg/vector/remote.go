package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
)

// RemoteStore is the HTTP fallback: it posts text to the remote embedding
// service, which embeds and writes to the vector store on our behalf.
type RemoteStore struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewRemoteStore creates a fallback store talking to the embedder service.
func NewRemoteStore(baseURL string, logger *zap.Logger) *RemoteStore {
	return &RemoteStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  logger.Named("vector-remote"),
	}
}

type remoteStoreRequest struct {
	Collection string            `json:"collection"`
	DocID      string            `json:"doc_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type remoteSearchRequest struct {
	Collection string            `json:"collection"`
	Query      string            `json:"query"`
	Filters    map[string]string `json:"filters,omitempty"`
	Limit      int               `json:"limit"`
}

type remoteSearchResponse struct {
	Results []Document `json:"results"`
}

func (s *RemoteStore) StoreText(ctx context.Context, collection, docID, text string, metadata map[string]string) error {
	req := remoteStoreRequest{Collection: collection, DocID: docID, Text: text, Metadata: metadata}
	return s.post(ctx, "/documents", req, nil)
}

func (s *RemoteStore) Search(ctx context.Context, collection, query string, filter SearchFilter, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 10
	}
	req := remoteSearchRequest{Collection: collection, Query: query, Limit: limit, Filters: map[string]string{}}
	if filter.OwnerID != "" {
		req.Filters["owner_id"] = filter.OwnerID
	}
	if filter.AreaID != "" {
		req.Filters["area_id"] = filter.AreaID
	}
	if filter.DocID != "" {
		req.Filters["doc_id"] = filter.DocID
	}

	var resp remoteSearchResponse
	if err := s.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	SortByScore(resp.Results)
	return resp.Results, nil
}

func (s *RemoteStore) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.Upstream("embedder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperrors.Upstream("embedder", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return apperrors.Newf(apperrors.KindValidation, "embedder rejected request: status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode embedder response: %w", err)
		}
	}
	return nil
}

func (s *RemoteStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.Upstream("embedder", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperrors.Upstream("embedder", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

func (s *RemoteStore) Close() error { return nil }

var _ Store = (*RemoteStore)(nil)
