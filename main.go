package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/adapters/datasource"
	"github.com/mratomo/backend-aiss-sub000/pkg/config"
	"github.com/mratomo/backend-aiss-sub000/pkg/crypto"
	"github.com/mratomo/backend-aiss-sub000/pkg/database"
	"github.com/mratomo/backend-aiss-sub000/pkg/graph"
	"github.com/mratomo/backend-aiss-sub000/pkg/handlers"
	"github.com/mratomo/backend-aiss-sub000/pkg/llm"
	"github.com/mratomo/backend-aiss-sub000/pkg/logging"
	"github.com/mratomo/backend-aiss-sub000/pkg/mcp"
	"github.com/mratomo/backend-aiss-sub000/pkg/middleware"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/services"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting graphrag platform",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Port))

	// Document store and repositories.
	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	documents, err := database.NewDocumentStore(bootCtx, &cfg.DocumentStore, logger)
	if err != nil {
		return err
	}
	defer func() { _ = documents.Close(context.Background()) }()

	connectionRepo := repositories.NewConnectionRepository(documents)
	schemaRepo := repositories.NewSchemaRepository(documents)
	agentRepo := repositories.NewAgentRepository(documents)
	areaRepo := repositories.NewAreaRepository(documents)
	providerRepo := repositories.NewProviderRepository(documents)
	contextRepo := repositories.NewContextRepository(documents)
	historyRepo := repositories.NewQueryHistoryRepository(documents)

	cipher, err := crypto.NewCipher(cfg.CredentialsKey)
	if err != nil {
		return err
	}
	drivers := datasource.NewCache(logger)
	defer drivers.Close(context.Background())

	// Vector store: native handle when configured, remote embedder
	// fallback otherwise.
	embedder := llm.NewRemoteEmbedder(cfg.Embedder.URL, cfg.LLM.OpenAIAPIKey, cfg.Embedder.Model)
	var vectorStore vector.Store
	if cfg.VectorStore.URL != "" {
		vectorStore, err = vector.NewWeaviateStore(cfg.VectorStore.URL, cfg.VectorStore.APIKey, embedder, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Info("no native vector store configured, using remote embedder writes")
		vectorStore = vector.NewRemoteStore(cfg.Embedder.URL, logger)
	}
	defer func() { _ = vectorStore.Close() }()

	// Graph store is optional; graph routes degrade when absent.
	var graphStore graph.Store
	if cfg.GraphStore.URI != "" {
		neo, err := graph.NewNeo4jStore(bootCtx, cfg.GraphStore.URI, cfg.GraphStore.User, cfg.GraphStore.Password, logger)
		if err != nil {
			return err
		}
		defer func() { _ = neo.Close(context.Background()) }()
		graphStore = neo
	} else {
		logger.Info("no graph store configured, projection and exploration disabled")
		graphStore = (*graph.Neo4jStore)(nil)
	}

	// MCP context runtime.
	registry := mcp.NewRegistry(contextRepo, logger)
	if err := registry.Load(bootCtx); err != nil {
		return err
	}
	mcpServer := mcp.NewServer("graphrag-platform", cfg.Version, registry, vectorStore, logger)
	mcpClient := mcp.NewEmbeddedClient(registry, vectorStore)

	// Tool plane selection: retrieval goes through MCP tools when enabled,
	// preferring the embedded client unless a sibling runtime is configured.
	var toolClient mcp.Client
	if cfg.MCP.UseTools {
		if !cfg.MCP.PreferDirect && cfg.MCP.ServerURL != "" {
			toolClient = mcp.NewHTTPClient(cfg.MCP.ServerURL)
		} else {
			toolClient = mcpClient
		}
		logger.Info("mcp tool plane enabled", zap.String("client_type", toolClient.ClientType()))
	}

	// LLM dispatcher.
	dispatcher := llm.NewDispatcher(providerRepo, areaRepo, cfg.LLM.RateLimitPerHour, logger)

	// Services.
	connectionSvc := services.NewConnectionService(connectionRepo, cipher, drivers, cfg.QueryTimeout(), logger)
	projectionSvc := services.NewProjectionService(graphStore, logger)
	vectorizerSvc := services.NewVectorizerService(schemaRepo, vectorStore, logger)
	discoverySvc := services.NewDiscoveryService(connectionRepo, schemaRepo, cipher, drivers,
		projectionSvc, vectorizerSvc, cfg.DiscoveryTimeout(), logger)
	analyzeSvc := services.NewAnalyzeService(schemaRepo, logger)
	agentSvc := services.NewAgentService(agentRepo, connectionRepo, logger)
	areaSvc := services.NewAreaService(areaRepo, registry, logger)
	providerSvc := services.NewProviderService(providerRepo, logger)
	querySvc := services.NewQueryService(vectorStore, toolClient, dispatcher, historyRepo, logger)
	graphRAGSvc := services.NewGraphRAGService(vectorStore, graphStore, dispatcher,
		areaRepo, historyRepo, querySvc, logger)

	seedProviders(bootCtx, cfg, providerSvc, logger)

	// HTTP surface.
	mux := http.NewServeMux()
	handlers.NewConnectionsHandler(connectionSvc, logger).RegisterRoutes(mux)
	handlers.NewAgentsHandler(agentSvc, logger).RegisterRoutes(mux)
	handlers.NewSchemasHandler(discoverySvc, analyzeSvc, vectorizerSvc, projectionSvc, schemaRepo, logger).RegisterRoutes(mux)
	handlers.NewQueriesHandler(querySvc, graphRAGSvc, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(registry, mcpClient, logger).RegisterRoutes(mux)
	handlers.NewAreasHandler(areaSvc, logger).RegisterRoutes(mux)
	handlers.NewProvidersHandler(providerSvc, logger).RegisterRoutes(mux)
	handlers.NewHealthHandler(documents, vectorStore, graphStore, logger).RegisterRoutes(mux)
	mux.Handle("/mcp/stream", mcpServer.NewStreamableHTTPServer())

	var handler http.Handler = mux
	handler = middleware.Metrics()(handler)
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.CORS(cfg.CORSAllowedOrigins)(handler)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	grace := time.Duration(cfg.ShutdownGraceSeconds) * time.Second
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), grace)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http drain incomplete", zap.Error(err))
	}
	if err := discoverySvc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("discovery shutdown incomplete", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// seedProviders registers bootstrap providers from environment keys on a
// fresh installation. Existing registrations always win.
func seedProviders(ctx context.Context, cfg *config.Config, providers services.ProviderService, logger *zap.Logger) {
	existing, err := providers.List(ctx)
	if err != nil || len(existing) > 0 {
		return
	}

	seeds := []*models.Provider{}
	if cfg.LLM.OpenAIAPIKey != "" {
		seeds = append(seeds, &models.Provider{
			Name: "openai", Type: models.ProviderTypeOpenAI,
			Model: cfg.LLM.DefaultModel, APIKey: cfg.LLM.OpenAIAPIKey, Default: true,
		})
	}
	if cfg.LLM.AnthropicAPIKey != "" {
		seeds = append(seeds, &models.Provider{
			Name: "anthropic", Type: models.ProviderTypeAnthropic,
			Model: "claude-sonnet-4-20250514", APIKey: cfg.LLM.AnthropicAPIKey, Default: len(seeds) == 0,
		})
	}
	if cfg.LLM.OllamaBaseURL != "" {
		seeds = append(seeds, &models.Provider{
			Name: "ollama", Type: models.ProviderTypeOllama,
			Model: "llama3", Endpoint: cfg.LLM.OllamaBaseURL, Default: len(seeds) == 0,
		})
	}

	for _, seed := range seeds {
		if _, err := providers.Create(ctx, seed); err != nil {
			logger.Warn("seed provider skipped",
				zap.String("name", seed.Name), zap.Error(err))
		}
	}
}
