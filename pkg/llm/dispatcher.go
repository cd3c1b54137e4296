// Package llm dispatches generation calls to the registered providers.
// Variants (OpenAI, Azure OpenAI, Anthropic, Google, Ollama) differ only
// in request shape; selection, rate limiting and retries live in one
// dispatch path.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/metrics"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/retry"
)

const (
	defaultMaxTokens = 1024

	// googleOpenAIBase is Gemini's OpenAI-compatible endpoint, used when
	// a google provider carries no explicit endpoint.
	googleOpenAIBase = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// GenerateRequest is one generation call.
type GenerateRequest struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64

	// Selection inputs: area preference wins over the explicit provider,
	// which wins over the registered default.
	ProviderID string
	AreaID     string

	// ActiveContexts are passed through to providers that declare native
	// MCP support; for the rest the planner has already inlined context
	// into the prompt.
	ActiveContexts []*models.Context
}

// GenerateResult carries the response text plus dispatch observability.
type GenerateResult struct {
	Text       string `json:"text"`
	ProviderID string `json:"provider_id"`
	Model      string `json:"model"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// Dispatcher resolves a provider per call and generates through it.
type Dispatcher struct {
	providers  repositories.ProviderRepository
	areas      repositories.AreaRepository
	limiter    *HourlyLimiter
	defaultCap int
	retryCfg   *retry.Config
	logger     *zap.Logger
}

func NewDispatcher(providers repositories.ProviderRepository, areas repositories.AreaRepository, defaultCapPerHour int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		providers:  providers,
		areas:      areas,
		limiter:    NewHourlyLimiter(),
		defaultCap: defaultCapPerHour,
		retryCfg: &retry.Config{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     15 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		logger: logger.Named("llm"),
	}
}

// Generate selects the provider, checks the hourly cap, and dispatches
// with retry on transport errors. HTTP 4xx responses other than 429 are
// not retried.
func (d *Dispatcher) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	provider, err := d.selectProvider(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := d.limiter.Allow(provider.ID, providerCap(provider, d.defaultCap)); err != nil {
		return nil, err
	}

	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}

	start := time.Now()
	text, err := retry.DoWithResult(ctx, d.retryCfg, func() (string, error) {
		text, err := d.dispatch(ctx, provider, req)
		if err != nil && !retriable(err) {
			return "", retry.Permanent(err)
		}
		return text, err
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues(string(provider.Type), "error").Inc()
		d.logger.Error("generation failed",
			zap.String("provider_id", provider.ID),
			zap.String("provider_type", string(provider.Type)),
			zap.Error(err))
		return nil, err
	}
	metrics.LLMCalls.WithLabelValues(string(provider.Type), "ok").Inc()

	return &GenerateResult{
		Text:       text,
		ProviderID: provider.ID,
		Model:      provider.Model,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}, nil
}

// selectProvider applies the per-call selection policy.
func (d *Dispatcher) selectProvider(ctx context.Context, req GenerateRequest) (*models.Provider, error) {
	if req.AreaID != "" {
		area, err := d.areas.Get(ctx, req.AreaID)
		if err == nil && area.PreferredProviderID != "" {
			if p, err := d.providers.Get(ctx, area.PreferredProviderID); err == nil {
				return p, nil
			}
			d.logger.Warn("area preferred provider missing, falling through",
				zap.String("area_id", req.AreaID),
				zap.String("provider_id", area.PreferredProviderID))
		}
	}
	if req.ProviderID != "" {
		return d.providers.Get(ctx, req.ProviderID)
	}
	return d.providers.GetDefault(ctx)
}

// providerCap resolves the hourly cap: metadata override first, then the
// configured default. The local Ollama runtime gets a generous cap.
func providerCap(p *models.Provider, fallback int) int {
	if raw, ok := p.Metadata["rate_limit_per_hour"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	if normalizeProviderType(p.Type) == models.ProviderTypeOllama {
		return fallback * 10
	}
	return fallback
}

// normalizeProviderType folds case and treats the raw string "ollama" as
// an alias of the enum value.
func normalizeProviderType(t models.ProviderType) models.ProviderType {
	switch strings.ToLower(string(t)) {
	case "ollama":
		return models.ProviderTypeOllama
	case "azure_openai", "azure-openai", "azure":
		return models.ProviderTypeAzureOpenAI
	default:
		return models.ProviderType(strings.ToLower(string(t)))
	}
}

// dispatch is the single fan-out over provider variants.
func (d *Dispatcher) dispatch(ctx context.Context, provider *models.Provider, req GenerateRequest) (string, error) {
	system := req.System
	if len(req.ActiveContexts) > 0 && provider.SupportsNativeMCP() {
		system = attachContexts(system, req.ActiveContexts)
	}

	switch normalizeProviderType(provider.Type) {
	case models.ProviderTypeOpenAI:
		cfg := openai.DefaultConfig(provider.APIKey)
		if provider.Endpoint != "" {
			cfg.BaseURL = strings.TrimRight(provider.Endpoint, "/")
		}
		return d.generateOpenAI(ctx, cfg, provider.Model, req, system)

	case models.ProviderTypeAzureOpenAI:
		cfg := openai.DefaultAzureConfig(provider.APIKey, provider.Endpoint)
		return d.generateOpenAI(ctx, cfg, provider.Model, req, system)

	case models.ProviderTypeGoogle:
		cfg := openai.DefaultConfig(provider.APIKey)
		cfg.BaseURL = googleOpenAIBase
		if provider.Endpoint != "" {
			cfg.BaseURL = strings.TrimRight(provider.Endpoint, "/")
		}
		return d.generateOpenAI(ctx, cfg, provider.Model, req, system)

	case models.ProviderTypeOllama:
		cfg := openai.DefaultConfig("")
		endpoint := provider.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:11434/v1"
		}
		cfg.BaseURL = strings.TrimRight(endpoint, "/")
		return d.generateOpenAI(ctx, cfg, provider.Model, req, system)

	case models.ProviderTypeAnthropic:
		return d.generateAnthropic(ctx, provider, req, system)

	default:
		return "", apperrors.Unsupported("provider type " + string(provider.Type))
	}
}

func (d *Dispatcher) generateOpenAI(ctx context.Context, cfg openai.ClientConfig, model string, req GenerateRequest, system string) (string, error) {
	client := openai.NewClientWithConfig(cfg)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", translateLLMError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.Upstream("llm provider", fmt.Errorf("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (d *Dispatcher) generateAnthropic(ctx context.Context, provider *models.Provider, req GenerateRequest, system string) (string, error) {
	opts := []anthropic.ClientOption{}
	if provider.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimRight(provider.Endpoint, "/")))
	}
	client := anthropic.NewClient(provider.APIKey, opts...)

	request := anthropic.MessagesRequest{
		Model:     anthropic.Model(provider.Model),
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage(req.Prompt)},
		MaxTokens: req.MaxTokens,
	}
	if system != "" {
		request.System = system
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		request.Temperature = &temp
	}

	resp, err := client.CreateMessages(ctx, request)
	if err != nil {
		return "", translateLLMError(err)
	}
	return resp.GetFirstContentText(), nil
}

// attachContexts appends the active contexts to the system prompt as a
// JSON block, the pass-through shape shared by the provider variants.
func attachContexts(system string, contexts []*models.Context) string {
	type contextRef struct {
		ID       string            `json:"context_id"`
		Name     string            `json:"name"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	refs := make([]contextRef, 0, len(contexts))
	for _, c := range contexts {
		refs = append(refs, contextRef{ID: c.ID, Name: c.Name, Metadata: c.Metadata})
	}
	body, err := json.Marshal(refs)
	if err != nil {
		return system
	}
	block := "Active MCP contexts: " + string(body)
	if system == "" {
		return block
	}
	return system + "\n\n" + block
}

// retriable reports whether a dispatch failure is worth another attempt:
// transport errors and 429s yes, other HTTP 4xx no.
func retriable(err error) bool {
	if apperrors.Is(err, apperrors.KindRateLimited) {
		return true
	}
	if apperrors.Is(err, apperrors.KindValidation) {
		return false
	}
	status := httpStatusOf(err)
	if status == 0 {
		return retry.IsTransient(err) || apperrors.Is(err, apperrors.KindUpstream)
	}
	if status == 429 {
		return true
	}
	return status >= 500
}

func httpStatusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var anthErr *anthropic.RequestError
	if errors.As(err, &anthErr) {
		return anthErr.StatusCode
	}
	return 0
}

func translateLLMError(err error) error {
	if err == nil {
		return nil
	}
	switch status := httpStatusOf(err); {
	case status == 429:
		return apperrors.RateLimited(60)
	case status >= 500:
		return apperrors.Upstream("llm provider", err)
	case status >= 400:
		return apperrors.Wrap(apperrors.KindValidation, "llm provider rejected the request", err)
	default:
		return apperrors.Upstream("llm provider", err)
	}
}
