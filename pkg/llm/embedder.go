package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

// RemoteEmbedder generates embeddings against an OpenAI-compatible
// embeddings endpoint; the platform's Embeddings service speaks this
// dialect.
type RemoteEmbedder struct {
	client *openai.Client
	model  string
}

func NewRemoteEmbedder(baseURL, apiKey, model string) *RemoteEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &RemoteEmbedder{client: openai.NewClientWithConfig(cfg), model: model}
}

func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, translateLLMError(err)
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.Upstream("embedder", fmt.Errorf("empty embedding response"))
	}
	return resp.Data[0].Embedding, nil
}

var _ vector.Embedder = (*RemoteEmbedder)(nil)
