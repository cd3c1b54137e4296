// Package config loads platform configuration.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values for fields
// that support both. Secrets (passwords, keys) must only come from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the platform.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// CORSAllowedOriginsStr is a comma-separated origin list.
	CORSAllowedOriginsStr string   `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	CORSAllowedOrigins    []string `yaml:"-"`

	// Document store (MongoDB) for entity metadata.
	DocumentStore DocumentStoreConfig `yaml:"document_store"`

	// Vector store (Weaviate) plus remote embedder fallback.
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedder    EmbedderConfig    `yaml:"embedder"`

	// Graph store (Neo4j) for schema projections.
	GraphStore GraphStoreConfig `yaml:"graph_store"`

	// Schema discovery orchestrator settings.
	Discovery DiscoveryConfig `yaml:"discovery"`

	// LLM provider settings.
	LLM LLMConfig `yaml:"llm"`

	// MCP runtime settings.
	MCP MCPConfig `yaml:"mcp"`

	// Document ingestion limits.
	MaxDocumentSizeMB int `yaml:"max_document_size_mb" env:"MAX_DOCUMENT_SIZE_MB" env-default:"25"`
	ChunkSize         int `yaml:"chunk_size" env:"CHUNK_SIZE" env-default:"1000"`
	ChunkOverlap      int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP" env-default:"200"`

	// ShutdownGraceSeconds bounds HTTP server drain on shutdown.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" env:"SHUTDOWN_GRACE_SECONDS" env-default:"15"`

	// Credential encryption key for target-database passwords.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	// Server will fail to start if this is not set.
	CredentialsKey string `yaml:"-" env:"CONNECTION_CREDENTIALS_KEY"` // Secret - not in YAML
}

// DocumentStoreConfig holds MongoDB configuration for the metadata store.
type DocumentStoreConfig struct {
	URI      string `yaml:"uri" env:"DOCUMENT_STORE_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"DOCUMENT_STORE_DB" env-default:"graphrag"`
	// Pool bounds for the shared client.
	MinPoolSize uint64 `yaml:"min_pool_size" env:"DOCUMENT_STORE_MIN_POOL" env-default:"10"`
	MaxPoolSize uint64 `yaml:"max_pool_size" env:"DOCUMENT_STORE_MAX_POOL" env-default:"50"`
	// SelectTimeoutSeconds is the server selection timeout.
	SelectTimeoutSeconds int `yaml:"select_timeout_seconds" env:"DOCUMENT_STORE_SELECT_TIMEOUT" env-default:"5"`
}

// VectorStoreConfig holds the native vector store handle configuration.
// When URL is empty the vectorization bridge falls back to posting text to
// the remote embedder, which writes on its behalf.
type VectorStoreConfig struct {
	URL    string `yaml:"url" env:"VECTOR_STORE_URL" env-default:""`
	APIKey string `yaml:"-" env:"VECTOR_STORE_API_KEY"` // Secret - not in YAML
}

// EmbedderConfig holds the sibling embedding service endpoint.
type EmbedderConfig struct {
	URL string `yaml:"url" env:"EMBEDDER_URL" env-default:"http://localhost:8085"`
	// Model is passed through to the embeddings backend.
	Model string `yaml:"model" env:"EMBEDDER_MODEL" env-default:"text-embedding-3-small"`
}

// GraphStoreConfig holds Neo4j configuration.
type GraphStoreConfig struct {
	URI      string `yaml:"uri" env:"GRAPH_STORE_URI" env-default:""`
	User     string `yaml:"user" env:"GRAPH_STORE_USER" env-default:"neo4j"`
	Password string `yaml:"-" env:"GRAPH_STORE_PASSWORD"` // Secret - not in YAML
}

// DiscoveryConfig holds schema discovery orchestrator settings.
type DiscoveryConfig struct {
	// TimeoutSeconds is schema_discovery_timeout; jobs additionally get a
	// 120s grace before the wall-clock timeout fires.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"SCHEMA_DISCOVERY_TIMEOUT" env-default:"300"`
	// QueryTimeoutSeconds is the default bound for execute_query calls.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"QUERY_TIMEOUT_SECONDS" env-default:"30"`
}

// LLMConfig holds per-provider API keys and endpoints. Individual providers
// are registered at runtime; these are the bootstrap defaults.
type LLMConfig struct {
	OpenAIAPIKey     string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey     string `yaml:"-" env:"GOOGLE_API_KEY"`
	AzureAPIKey      string `yaml:"-" env:"AZURE_OPENAI_API_KEY"`
	AzureEndpoint    string `yaml:"azure_endpoint" env:"AZURE_OPENAI_ENDPOINT" env-default:""`
	OllamaBaseURL    string `yaml:"ollama_base_url" env:"OLLAMA_BASE_URL" env-default:""`
	DefaultModel     string `yaml:"default_model" env:"LLM_DEFAULT_MODEL" env-default:"gpt-4o"`
	RateLimitPerHour int    `yaml:"rate_limit_per_hour" env:"LLM_RATE_LIMIT_PER_HOUR" env-default:"50"`
}

// MCPConfig holds MCP runtime settings.
type MCPConfig struct {
	// UseTools enables routing retrieval through MCP tool calls.
	UseTools bool `yaml:"use_mcp_tools" env:"USE_MCP_TOOLS" env-default:"true"`
	// PreferDirect prefers the embedded native client over HTTP fallback.
	PreferDirect bool `yaml:"prefer_direct_mcp" env:"PREFER_DIRECT_MCP" env-default:"true"`
	// ServerURL is the HTTP fallback endpoint for the tool plane.
	ServerURL string `yaml:"server_url" env:"MCP_SERVER_URL" env-default:""`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.CORSAllowedOrigins = splitAndTrim(cfg.CORSAllowedOriginsStr)

	if cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CONNECTION_CREDENTIALS_KEY must be set")
	}

	return cfg, nil
}

// DiscoveryTimeout returns the configured per-job discovery timeout.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSeconds) * time.Second
}

// QueryTimeout returns the default execute_query bound.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Discovery.QueryTimeoutSeconds) * time.Second
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
