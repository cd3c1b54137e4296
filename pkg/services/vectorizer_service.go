package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

const (
	// maxDescriptionChars caps the canonical schema text handed to the
	// embedder. Excess is cut with a visible marker.
	maxDescriptionChars = 100000

	vectorizeAttempts       = 3
	vectorizeInitialTimeout = 120 * time.Second
	vectorizeTimeoutStep    = 60 * time.Second
)

// VectorizerService turns a discovered schema into a searchable document
// in the vector store.
type VectorizerService interface {
	// VectorizeSchema renders the schema, writes the vector and records
	// vector_id on the persisted schema. Failures are recorded as
	// vectorization_error; the schema itself stays completed.
	VectorizeSchema(ctx context.Context, schema *models.Schema) (string, error)
}

type vectorizerService struct {
	schemas repositories.SchemaRepository
	store   vector.Store
	logger  *zap.Logger
}

func NewVectorizerService(schemas repositories.SchemaRepository, store vector.Store, logger *zap.Logger) VectorizerService {
	return &vectorizerService{schemas: schemas, store: store, logger: logger.Named("vectorizer")}
}

func (s *vectorizerService) VectorizeSchema(ctx context.Context, schema *models.Schema) (string, error) {
	description := RenderSchemaText(schema)
	vectorID := SchemaVectorID(schema.ConnectionID, description)
	metadata := map[string]string{
		"connection_id": schema.ConnectionID,
		"db_type":       schema.DBType,
		"name":          schema.Name,
		"schema_hash":   descriptionHash(description),
		"tables_count":  strconv.Itoa(len(schema.Tables)),
	}

	var lastErr error
	for attempt := 0; attempt < vectorizeAttempts; attempt++ {
		timeout := vectorizeInitialTimeout + time.Duration(attempt)*vectorizeTimeoutStep
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = s.store.StoreText(attemptCtx, vector.CollectionDatabaseSchemas, vectorID, description, metadata)
		cancel()
		if lastErr == nil {
			break
		}
		s.logger.Warn("vectorization attempt failed",
			zap.String("connection_id", schema.ConnectionID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		if err := s.schemas.SetVectorizationError(ctx, schema.ConnectionID, lastErr.Error()); err != nil {
			s.logger.Warn("record vectorization error", zap.String("connection_id", schema.ConnectionID), zap.Error(err))
		}
		return "", apperrors.Wrap(apperrors.KindUpstream, "vectorize schema", lastErr)
	}

	if err := s.schemas.SetVectorID(ctx, schema.ConnectionID, vectorID); err != nil {
		s.logger.Warn("record vector id", zap.String("connection_id", schema.ConnectionID), zap.Error(err))
	}
	s.logger.Info("schema vectorized",
		zap.String("connection_id", schema.ConnectionID),
		zap.String("vector_id", vectorID),
		zap.Int("tables", len(schema.Tables)))
	return vectorID, nil
}

// SchemaVectorID derives the deterministic vector document id for a
// schema description.
func SchemaVectorID(connectionID, description string) string {
	return "schema_" + connectionID + "_" + descriptionHash(description)
}

func descriptionHash(description string) string {
	sum := md5.Sum([]byte(description))
	return hex.EncodeToString(sum[:])
}

// RenderSchemaText builds the canonical text form of a schema: a database
// header followed by one block per table listing columns with their
// constraint flags.
func RenderSchemaText(schema *models.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s (%s", schema.Name, schema.DBType)
	if schema.Version != "" {
		fmt.Fprintf(&b, " %s", schema.Version)
	}
	fmt.Fprintf(&b, ")\nTables: %d\n", len(schema.Tables))

	for _, table := range schema.Tables {
		fmt.Fprintf(&b, "\nTable %s.%s (%d rows)", table.SchemaName, table.Name, table.RowCount)
		if table.Description != "" {
			fmt.Fprintf(&b, " - %s", table.Description)
		}
		b.WriteString("\n")
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  %s %s", col.Name, col.DataType)
			if col.PrimaryKey {
				b.WriteString(" PRIMARY KEY")
			}
			if col.ForeignKey {
				b.WriteString(" FOREIGN KEY")
			}
			if col.References != "" {
				fmt.Fprintf(&b, " -> %s", col.References)
			}
			if !col.Nullable {
				b.WriteString(" NOT NULL")
			}
			if col.Description != "" {
				fmt.Fprintf(&b, " - %s", col.Description)
			}
			b.WriteString("\n")
		}
	}

	text := b.String()
	if len(text) > maxDescriptionChars {
		text = text[:maxDescriptionChars] + "\n[description truncated]"
	}
	return text
}
