package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

// ErrorResponse is returned to the MCP client as a JSON success payload
// so the model can see and act on the failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResult builds an error-flagged tool result with a JSON body.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	body, _ := json.Marshal(ErrorResponse{Error: true, Code: code, Message: message})
	result := mcp.NewToolResultText(string(body))
	result.IsError = true
	return result
}

// StoreDocumentResult acknowledges a stored document.
type StoreDocumentResult struct {
	DocID      string `json:"doc_id"`
	Collection string `json:"collection"`
	Stored     bool   `json:"stored"`
}

// FindRelevantResult carries similarity search hits.
type FindRelevantResult struct {
	Results []RelevantFragment `json:"results"`
	Count   int                `json:"count"`
}

// RelevantFragment is one search hit in the tool's wire shape.
type RelevantFragment struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleStoreDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	information, err := req.RequireString("information")
	if err != nil {
		return NewErrorResult("invalid_parameters", err.Error()), nil
	}
	if information == "" {
		return NewErrorResult("invalid_parameters", "information must not be empty"), nil
	}

	metadata := map[string]string{}
	if raw, ok := req.GetArguments()["metadata"].(map[string]any); ok {
		for k, v := range raw {
			metadata[k] = fmt.Sprintf("%v", v)
		}
	}

	// The active context at call time travels with the document.
	if active := s.registry.ActiveContexts(); len(active) > 0 {
		metadata["context_id"] = active[0].ID
	}

	collection := vector.CollectionGeneral
	if metadata["embedding_type"] == "personal" {
		collection = vector.CollectionPersonal
	}

	docID := uuid.NewString()
	metadata["doc_id"] = docID

	if err := s.store.StoreText(ctx, collection, docID, information, metadata); err != nil {
		s.logger.Error("store document", zap.String("doc_id", docID), zap.Error(err))
		return NewErrorResult("storage_failed", "failed to store document"), nil
	}

	body, err := json.Marshal(StoreDocumentResult{DocID: docID, Collection: collection, Stored: true})
	if err != nil {
		return nil, fmt.Errorf("marshal store result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) handleFindRelevant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return NewErrorResult("invalid_parameters", err.Error()), nil
	}

	collection := vector.CollectionGeneral
	if req.GetString("embedding_type", "") == "personal" {
		collection = vector.CollectionPersonal
	}

	filter := vector.SearchFilter{
		OwnerID: req.GetString("owner_id", ""),
		AreaID:  req.GetString("area_id", ""),
	}
	limit := req.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	docs, err := s.store.Search(ctx, collection, query, filter, limit)
	if err != nil {
		s.logger.Error("find relevant", zap.String("collection", collection), zap.Error(err))
		return NewErrorResult("search_failed", "similarity search failed"), nil
	}

	result := FindRelevantResult{Results: make([]RelevantFragment, 0, len(docs)), Count: len(docs)}
	for _, doc := range docs {
		result.Results = append(result.Results, RelevantFragment{
			Text:     doc.Text,
			Score:    doc.Score,
			Metadata: doc.Metadata,
		})
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal search result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
