package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
)

// HTTPClient is the fallback path: it calls the runtime's HTTP surface
// instead of the in-process registry. Used when the runtime runs in a
// sibling process.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) ClientType() string { return ClientTypeHTTP }

func (c *HTTPClient) StoreDocument(ctx context.Context, information string, metadata map[string]string) (*StoreAck, error) {
	payload := map[string]any{"information": information}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	var ack StoreAck
	if err := c.post(ctx, "/mcp/tools/store-document", payload, &ack); err != nil {
		return nil, err
	}
	ack.ClientType = ClientTypeHTTP
	return &ack, nil
}

func (c *HTTPClient) FindRelevant(ctx context.Context, query string, opts FindOptions) (*FindResult, error) {
	payload := map[string]any{"query": query}
	if opts.EmbeddingType != "" {
		payload["embedding_type"] = opts.EmbeddingType
	}
	if opts.OwnerID != "" {
		payload["owner_id"] = opts.OwnerID
	}
	if opts.AreaID != "" {
		payload["area_id"] = opts.AreaID
	}
	if opts.Limit > 0 {
		payload["limit"] = opts.Limit
	}
	var result FindResult
	if err := c.post(ctx, "/mcp/tools/find-relevant", payload, &result); err != nil {
		return nil, err
	}
	result.ClientType = ClientTypeHTTP
	return &result, nil
}

// ActiveContexts lists active contexts, optionally filtered by
// metadata.type via the type query parameter.
func (c *HTTPClient) ActiveContexts(ctx context.Context, metadataType string) (*ContextsResult, error) {
	endpoint := c.baseURL + "/mcp/active-contexts"
	if metadataType != "" {
		endpoint += "?type=" + url.QueryEscape(metadataType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Upstream("mcp runtime", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result ContextsResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Upstream("mcp runtime", err)
	}
	result.ClientType = ClientTypeHTTP
	return &result, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Upstream("mcp runtime", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.KindNotFound, string(snippet))
	case resp.StatusCode >= 500:
		return apperrors.Upstream("mcp runtime", fmt.Errorf("status %d: %s", resp.StatusCode, snippet))
	default:
		return apperrors.Newf(apperrors.KindValidation, "status %d: %s", resp.StatusCode, snippet)
	}
}

var _ Client = (*HTTPClient)(nil)
