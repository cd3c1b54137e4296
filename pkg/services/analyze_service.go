package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/graph"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
)

// AnalyzeService derives ready-to-run query suggestions from a discovered
// schema. Suggestions are deterministic: they come straight from table
// shapes and foreign keys, no model involved.
type AnalyzeService interface {
	Analyze(ctx context.Context, connectionID string) ([]models.SchemaQuerySuggestion, error)
}

type analyzeService struct {
	schemas repositories.SchemaRepository
	logger  *zap.Logger
}

func NewAnalyzeService(schemas repositories.SchemaRepository, logger *zap.Logger) AnalyzeService {
	return &analyzeService{schemas: schemas, logger: logger.Named("analyze")}
}

func (s *analyzeService) Analyze(ctx context.Context, connectionID string) ([]models.SchemaQuerySuggestion, error) {
	schema, err := s.schemas.GetByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	suggestions := make([]models.SchemaQuerySuggestion, 0, len(schema.Tables)*2)
	for _, table := range schema.Tables {
		suggestions = append(suggestions, previewSuggestion(table))
		if countable(table) {
			suggestions = append(suggestions, countSuggestion(table))
		}
	}
	suggestions = append(suggestions, joinSuggestions(schema)...)
	return suggestions, nil
}

func qualified(table models.Table) string {
	if table.SchemaName == "" {
		return table.Name
	}
	return table.SchemaName + "." + table.Name
}

func previewSuggestion(table models.Table) models.SchemaQuerySuggestion {
	return models.SchemaQuerySuggestion{
		Title:       fmt.Sprintf("Preview %s", table.Name),
		Description: fmt.Sprintf("First rows of %s", qualified(table)),
		SQL:         fmt.Sprintf("SELECT * FROM %s LIMIT 10", qualified(table)),
		Tables:      []string{table.Name},
	}
}

func countable(table models.Table) bool {
	return table.RowCount > 0
}

func countSuggestion(table models.Table) models.SchemaQuerySuggestion {
	return models.SchemaQuerySuggestion{
		Title:       fmt.Sprintf("Count %s", table.Name),
		Description: fmt.Sprintf("Row count of %s", qualified(table)),
		SQL:         fmt.Sprintf("SELECT COUNT(*) FROM %s", qualified(table)),
		Tables:      []string{table.Name},
	}
}

// joinSuggestions emits one JOIN per resolvable foreign key.
func joinSuggestions(schema *models.Schema) []models.SchemaQuerySuggestion {
	byName := make(map[string]models.Table, len(schema.Tables))
	for _, t := range schema.Tables {
		byName[t.Name] = t
	}

	var out []models.SchemaQuerySuggestion
	for _, table := range schema.Tables {
		for _, col := range table.Columns {
			if col.References == "" {
				continue
			}
			ref, ok := graph.ParseReference(table.SchemaName, col.References)
			if !ok {
				continue
			}
			target, ok := byName[ref.Table]
			if !ok {
				continue
			}
			out = append(out, models.SchemaQuerySuggestion{
				Title: fmt.Sprintf("Join %s with %s", table.Name, target.Name),
				Description: fmt.Sprintf("Rows of %s with their related %s via %s",
					table.Name, target.Name, col.Name),
				SQL: fmt.Sprintf("SELECT * FROM %s JOIN %s ON %s.%s = %s.%s LIMIT 10",
					qualified(table), qualified(target),
					table.Name, col.Name, target.Name, ref.Column),
				Tables: []string{table.Name, target.Name},
			})
		}
	}
	return out
}
