package models

import "time"

// ProviderType tags an LLM provider variant. Variants differ only in
// request shape; dispatch happens in one function.
type ProviderType string

const (
	ProviderTypeOpenAI      ProviderType = "openai"
	ProviderTypeAzureOpenAI ProviderType = "azure_openai"
	ProviderTypeAnthropic   ProviderType = "anthropic"
	ProviderTypeGoogle      ProviderType = "google"
	ProviderTypeOllama      ProviderType = "ollama"
)

// Provider is a registered LLM back end.
type Provider struct {
	ID       string            `json:"id" bson:"_id"`
	Name     string            `json:"name" bson:"name"`
	Type     ProviderType      `json:"type" bson:"type"`
	Model    string            `json:"model" bson:"model"`
	APIKey   string            `json:"-" bson:"api_key"`
	Endpoint string            `json:"endpoint,omitempty" bson:"endpoint,omitempty"`
	Default  bool              `json:"default" bson:"default"`
	Metadata map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// SupportsNativeMCP reports whether the provider declares native MCP
// support in its metadata, enabling context pass-through on generation.
func (p *Provider) SupportsNativeMCP() bool {
	return p.Metadata["mcp_native"] == "true"
}
