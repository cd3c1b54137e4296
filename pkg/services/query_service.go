package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/llm"
	"github.com/mratomo/backend-aiss-sub000/pkg/mcp"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

const defaultRetrievalLimit = 5

// ragSystemPrompt is the standard retrieval-augmented template: the model
// answers from the supplied context only.
const ragSystemPrompt = "You are a knowledge assistant. Answer the question using only the information in the provided context. If the context does not contain the answer, say so plainly."

// QueryRequest is the shared input of the RAG paths.
type QueryRequest struct {
	Query           string `json:"query"`
	UserID          string `json:"user_id,omitempty"`
	AreaID          string `json:"area_id,omitempty"`
	ConnectionID    string `json:"connection_id,omitempty"`
	ProviderID      string `json:"llm_provider_id,omitempty"`
	IncludePersonal bool   `json:"include_personal,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`

	// AreaIDs is the list form some clients send; the first entry scopes
	// the query when AreaID is unset.
	AreaIDs []string `json:"area_ids,omitempty"`
}

func (r *QueryRequest) normalize() {
	if r.AreaID == "" && len(r.AreaIDs) > 0 {
		r.AreaID = r.AreaIDs[0]
	}
}

// QueryResponse is the answer envelope of every query path.
type QueryResponse struct {
	Answer           string            `json:"answer"`
	QueryType        string            `json:"query_type,omitempty"`
	Sources          []models.Source   `json:"sources"`
	ProviderID       string            `json:"provider_id,omitempty"`
	Model            string            `json:"model,omitempty"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
	ProcessingInfo   map[string]string `json:"processing_info,omitempty"`
}

// QueryService answers questions over the vector store with plain
// retrieval-augmented generation.
type QueryService interface {
	// Query retrieves from the general collection, optionally merging the
	// caller's personal collection, and generates an answer.
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)

	// QueryArea scopes retrieval to an area before answering.
	QueryArea(ctx context.Context, areaID string, req QueryRequest) (*QueryResponse, error)

	// QueryPersonal searches only the caller's personal collection.
	QueryPersonal(ctx context.Context, req QueryRequest) (*QueryResponse, error)

	History(ctx context.Context, filter repositories.HistoryFilter) ([]*models.QueryRecord, error)
}

type queryService struct {
	store      vector.Store
	tools      mcp.Client
	dispatcher *llm.Dispatcher
	history    repositories.QueryHistoryRepository
	logger     *zap.Logger
}

// NewQueryService builds the RAG query path. When tools is non-nil,
// retrieval routes through the MCP tool plane instead of hitting the
// vector store directly; either client flavour works.
func NewQueryService(store vector.Store, tools mcp.Client, dispatcher *llm.Dispatcher, history repositories.QueryHistoryRepository, logger *zap.Logger) QueryService {
	return &queryService{
		store:      store,
		tools:      tools,
		dispatcher: dispatcher,
		history:    history,
		logger:     logger.Named("query"),
	}
}

func (s *queryService) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.Query == "" {
		return nil, apperrors.Validation("query is required")
	}
	req.normalize()
	docs, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.answer(ctx, req, docs, "vector")
}

func (s *queryService) QueryArea(ctx context.Context, areaID string, req QueryRequest) (*QueryResponse, error) {
	req.AreaID = areaID
	return s.Query(ctx, req)
}

func (s *queryService) QueryPersonal(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.Query == "" {
		return nil, apperrors.Validation("query is required")
	}
	if req.UserID == "" {
		return nil, apperrors.Validation("user_id is required for personal queries")
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}
	docs, err := s.store.Search(ctx, vector.CollectionPersonal, req.Query,
		vector.SearchFilter{OwnerID: req.UserID, AreaID: req.AreaID}, limit)
	if err != nil {
		return nil, err
	}
	return s.answer(ctx, req, docs, "personal")
}

func (s *queryService) History(ctx context.Context, filter repositories.HistoryFilter) ([]*models.QueryRecord, error) {
	return s.history.List(ctx, filter)
}

// retrieve searches the general collection and, when the caller asks for
// it, merges the personal collection re-ranked by score.
func (s *queryService) retrieve(ctx context.Context, req QueryRequest) ([]vector.Document, error) {
	limit := req.MaxResults
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}
	if s.tools != nil {
		return s.retrieveViaTools(ctx, req, limit)
	}
	docs, err := s.store.Search(ctx, vector.CollectionGeneral, req.Query,
		vector.SearchFilter{AreaID: req.AreaID}, limit)
	if err != nil {
		return nil, err
	}
	if req.IncludePersonal && req.UserID != "" {
		personal, err := s.store.Search(ctx, vector.CollectionPersonal, req.Query,
			vector.SearchFilter{OwnerID: req.UserID, AreaID: req.AreaID}, limit)
		if err != nil {
			s.logger.Warn("personal retrieval failed", zap.Error(err))
		} else {
			docs = append(docs, personal...)
			vector.SortByScore(docs)
			if len(docs) > limit {
				docs = docs[:limit]
			}
		}
	}
	return docs, nil
}

// retrieveViaTools runs the same general+personal retrieval through the
// MCP find_relevant tool.
func (s *queryService) retrieveViaTools(ctx context.Context, req QueryRequest, limit int) ([]vector.Document, error) {
	result, err := s.tools.FindRelevant(ctx, req.Query, mcp.FindOptions{
		AreaID: req.AreaID,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	docs := fragmentsToDocuments(result.Results)

	if req.IncludePersonal && req.UserID != "" {
		personal, err := s.tools.FindRelevant(ctx, req.Query, mcp.FindOptions{
			EmbeddingType: "personal",
			OwnerID:       req.UserID,
			AreaID:        req.AreaID,
			Limit:         limit,
		})
		if err != nil {
			s.logger.Warn("personal retrieval failed", zap.Error(err))
		} else {
			docs = append(docs, fragmentsToDocuments(personal.Results)...)
			vector.SortByScore(docs)
			if len(docs) > limit {
				docs = docs[:limit]
			}
		}
	}
	s.logger.Debug("retrieved via tool plane",
		zap.String("client_type", result.ClientType),
		zap.Int("results", len(docs)))
	return docs, nil
}

func fragmentsToDocuments(fragments []mcp.RelevantFragment) []vector.Document {
	docs := make([]vector.Document, 0, len(fragments))
	for _, f := range fragments {
		docs = append(docs, vector.Document{
			DocID:    f.Metadata["doc_id"],
			Text:     f.Text,
			Score:    f.Score,
			Metadata: f.Metadata,
		})
	}
	return docs
}

func (s *queryService) answer(ctx context.Context, req QueryRequest, docs []vector.Document, queryType string) (*QueryResponse, error) {
	start := time.Now()

	result, err := s.dispatcher.Generate(ctx, llm.GenerateRequest{
		Prompt:     BuildRAGPrompt(req.Query, FormatDocumentContext(docs)),
		System:     ragSystemPrompt,
		ProviderID: req.ProviderID,
		AreaID:     req.AreaID,
	})
	if err != nil {
		return nil, err
	}

	resp := &QueryResponse{
		Answer:           result.Text,
		QueryType:        queryType,
		Sources:          SourcesFromDocuments(docs),
		ProviderID:       result.ProviderID,
		Model:            result.Model,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
	s.record(ctx, req, resp, queryType)
	return resp, nil
}

func (s *queryService) record(ctx context.Context, req QueryRequest, resp *QueryResponse, queryType string) {
	rec := &models.QueryRecord{
		ID:               uuid.NewString(),
		Query:            req.Query,
		UserID:           req.UserID,
		ConnectionID:     req.ConnectionID,
		IncludePersonal:  req.IncludePersonal,
		ProviderID:       resp.ProviderID,
		QueryType:        queryType,
		Answer:           resp.Answer,
		Sources:          resp.Sources,
		ProcessingTimeMS: resp.ProcessingTimeMS,
		ProcessingInfo:   resp.ProcessingInfo,
		Timestamp:        time.Now().UTC(),
	}
	if req.AreaID != "" {
		rec.AreaIDs = []string{req.AreaID}
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.logger.Warn("record query history", zap.Error(err))
	}
}

// FormatDocumentContext renders retrieved fragments as a numbered context
// block for the RAG prompt.
func FormatDocumentContext(docs []vector.Document) string {
	if len(docs) == 0 {
		return "(no relevant documents found)"
	}
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(doc.Text))
	}
	return b.String()
}

// BuildRAGPrompt assembles the standard context-then-question prompt.
func BuildRAGPrompt(query, contextBlock string) string {
	return fmt.Sprintf("Context:\n%s\nQuestion: %s", contextBlock, query)
}

// SourcesFromDocuments converts retrieval hits to cited sources, keeping
// the descending-score order.
func SourcesFromDocuments(docs []vector.Document) []models.Source {
	sources := make([]models.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, models.Source{
			DocID:    doc.DocID,
			Score:    doc.Score,
			Text:     doc.Text,
			Metadata: doc.Metadata,
		})
	}
	return sources
}
