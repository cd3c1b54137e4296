// Package database owns the shared document store client.
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/config"
	"github.com/mratomo/backend-aiss-sub000/pkg/logging"
)

// Collection names, one per entity kind.
const (
	CollectionConnections      = "connections"
	CollectionAgents           = "agents"
	CollectionAgentConnections = "agent_connections"
	CollectionSchemas          = "schemas"
	CollectionAreas            = "areas"
	CollectionContexts         = "contexts"
	CollectionProviders        = "providers"
	CollectionQueryHistory     = "query_history"
)

// DocumentStore wraps the MongoDB client and database handle.
type DocumentStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewDocumentStore connects to MongoDB with the configured pool bounds and
// server-selection timeout, pings it and ensures indexes.
func NewDocumentStore(ctx context.Context, cfg *config.DocumentStoreConfig, logger *zap.Logger) (*DocumentStore, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetServerSelectionTimeout(time.Duration(cfg.SelectTimeoutSeconds) * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping document store at %s: %w", logging.SanitizeURI(cfg.URI), err)
	}

	store := &DocumentStore{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger.Named("docstore"),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.Info("document store connected",
		zap.String("uri", logging.SanitizeURI(cfg.URI)),
		zap.String("database", cfg.Database))
	return store, nil
}

// Collection returns a handle for the named collection.
func (s *DocumentStore) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// Ping verifies the store is reachable.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *DocumentStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ensureIndexes creates the indexes queries depend on. Schema documents are
// additionally indexed by connection_id (unique).
func (s *DocumentStore) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	indexes := map[string][]mongo.IndexModel{
		CollectionSchemas: {
			{Keys: bson.D{{Key: "connection_id", Value: 1}}, Options: unique},
		},
		CollectionAgentConnections: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}}},
			{Keys: bson.D{{Key: "connection_id", Value: 1}}},
		},
		CollectionQueryHistory: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "connection_id", Value: 1}}},
		},
		CollectionAreas: {
			{Keys: bson.D{{Key: "context_id", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("ensure indexes on %s: %w", coll, err)
		}
	}
	return nil
}
