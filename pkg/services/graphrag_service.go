package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/graph"
	"github.com/mratomo/backend-aiss-sub000/pkg/llm"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

// Query classifications assigned by the analysis node.
const (
	queryTypeDirect      = "direct"
	queryTypeExploration = "exploration"
	queryTypeAnalysis    = "analysis"
)

// apologyAnswer is returned when neither the graph path nor the vector
// fallback could produce a response.
const apologyAnswer = "I am sorry, I was unable to process your question at this time. Please try again later."

const (
	maxSubQueries      = 3
	maxCommunities     = 5
	maxPathEntities    = 3
	maxSubQueryRows    = 10
	secondaryRelevance = 0.7
)

const analysisSystemPrompt = `You classify database questions. Respond with JSON only, no prose:
{"query_type": "direct" | "exploration" | "analysis", "tables": ["..."], "exploration_depth": 1 | 2 | 3}
"direct" asks about a specific table or value, "exploration" asks how things connect, "analysis" asks for structure-wide insight.`

const subQuerySystemPrompt = `You decompose a database question into at most three short sub-questions that can each be answered independently. Respond with a JSON array of strings only.`

const graphQuerySystemPrompt = `You translate a question about database structure into a single read-only Cypher query over nodes (:Table {name, schema, connection_id, description}) and relationships [:RELATES_TO {via_column, to_column}]. Always filter on connection_id with the $connection_id parameter. Respond with JSON only: {"query": "...", "params": {...}}.`

// GraphQueryRequest extends the RAG request with planner controls used by
// the advanced endpoint.
type GraphQueryRequest struct {
	QueryRequest
	ExplorationDepth   int  `json:"exploration_depth,omitempty"`
	IncludeCommunities bool `json:"include_communities,omitempty"`
}

// GraphRAGService answers questions by planning over the schema graph and
// falling back to pure vector retrieval when planning fails.
type GraphRAGService interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	QueryAdvanced(ctx context.Context, req GraphQueryRequest) (*QueryResponse, error)
}

type graphRAGService struct {
	store      vector.Store
	graph      graph.Store
	dispatcher *llm.Dispatcher
	areas      repositories.AreaRepository
	history    repositories.QueryHistoryRepository
	fallback   QueryService
	logger     *zap.Logger
}

func NewGraphRAGService(
	store vector.Store,
	graphStore graph.Store,
	dispatcher *llm.Dispatcher,
	areas repositories.AreaRepository,
	history repositories.QueryHistoryRepository,
	fallback QueryService,
	logger *zap.Logger,
) GraphRAGService {
	return &graphRAGService{
		store:      store,
		graph:      graphStore,
		dispatcher: dispatcher,
		areas:      areas,
		history:    history,
		fallback:   fallback,
		logger:     logger.Named("graphrag"),
	}
}

// graphState is the planner's evolving state object, threaded through the
// nodes in order.
type graphState struct {
	req GraphQueryRequest

	queryType       string
	mentionedTables []string
	depth           int

	documents   []vector.Document
	entities    []models.GraphEntity
	relations   []models.GraphRelation
	paths       []models.GraphPath
	communities []models.GraphCommunity
	subAnswers  []subQueryAnswer

	info map[string]string
}

type subQueryAnswer struct {
	Question string
	Answer   string
}

func (s *graphRAGService) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	return s.QueryAdvanced(ctx, GraphQueryRequest{QueryRequest: req})
}

func (s *graphRAGService) QueryAdvanced(ctx context.Context, req GraphQueryRequest) (*QueryResponse, error) {
	if req.Query == "" {
		return nil, apperrors.Validation("query is required")
	}
	req.normalize()

	resp, err := s.run(ctx, req)
	if err == nil {
		return resp, nil
	}
	s.logger.Warn("graph planning failed, falling back to vector retrieval",
		zap.Error(err))

	resp, fbErr := s.fallback.Query(ctx, req.QueryRequest)
	if fbErr == nil {
		if resp.ProcessingInfo == nil {
			resp.ProcessingInfo = map[string]string{}
		}
		resp.ProcessingInfo["fallback"] = "vector"
		return resp, nil
	}
	s.logger.Error("vector fallback failed", zap.Error(fbErr))

	return &QueryResponse{
		Answer:  apologyAnswer,
		Sources: []models.Source{},
		ProcessingInfo: map[string]string{
			"error": fbErr.Error(),
		},
	}, nil
}

// run executes the seven planner nodes in order with the two conditional
// edges after entity identification and after exploration.
func (s *graphRAGService) run(ctx context.Context, req GraphQueryRequest) (*QueryResponse, error) {
	start := time.Now()
	state := &graphState{
		req:       req,
		queryType: queryTypeDirect,
		depth:     1,
		info:      map[string]string{},
	}

	s.analyzeQuery(ctx, state)
	if err := s.retrieveSchemas(ctx, state); err != nil {
		return nil, err
	}
	s.identifyEntities(ctx, state)

	if s.shouldExplore(state) {
		s.explore(ctx, state)
	}
	if s.shouldGenerateSubQueries(state) {
		s.generateSubQueries(ctx, state)
	}

	contextBlock := s.aggregateContext(state)
	result, err := s.dispatcher.Generate(ctx, llm.GenerateRequest{
		Prompt:     BuildRAGPrompt(state.req.Query, contextBlock),
		System:     ragSystemPrompt,
		ProviderID: state.req.ProviderID,
		AreaID:     state.req.AreaID,
	})
	if err != nil {
		return nil, err
	}

	resp := &QueryResponse{
		Answer:           result.Text,
		QueryType:        "graph",
		Sources:          SourcesFromDocuments(state.documents),
		ProviderID:       result.ProviderID,
		Model:            result.Model,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		ProcessingInfo:   state.info,
	}
	s.record(ctx, state, resp)
	return resp, nil
}

// analyzeQuery classifies the question and extracts mentioned tables via a
// structured-JSON model call. Any parse failure leaves the direct default.
func (s *graphRAGService) analyzeQuery(ctx context.Context, state *graphState) {
	if state.req.ExplorationDepth > 0 {
		state.depth = clampDepth(state.req.ExplorationDepth)
	}

	result, err := s.dispatcher.Generate(ctx, llm.GenerateRequest{
		Prompt:     state.req.Query,
		System:     analysisSystemPrompt,
		ProviderID: state.req.ProviderID,
		AreaID:     state.req.AreaID,
	})
	if err != nil {
		s.logger.Debug("query analysis call failed", zap.Error(err))
		state.info["query_type"] = state.queryType
		return
	}

	var parsed struct {
		QueryType        string   `json:"query_type"`
		Tables           []string `json:"tables"`
		ExplorationDepth int      `json:"exploration_depth"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(result.Text)), &parsed); err != nil {
		s.logger.Debug("query analysis parse failed", zap.Error(err))
		state.info["query_type"] = state.queryType
		return
	}

	switch parsed.QueryType {
	case queryTypeDirect, queryTypeExploration, queryTypeAnalysis:
		state.queryType = parsed.QueryType
	}
	state.mentionedTables = parsed.Tables
	if state.req.ExplorationDepth == 0 && parsed.ExplorationDepth > 0 {
		state.depth = clampDepth(parsed.ExplorationDepth)
	}
	state.info["query_type"] = state.queryType
}

// retrieveSchemas populates the vector snippets and resolves the area's
// connection when one is attached.
func (s *graphRAGService) retrieveSchemas(ctx context.Context, state *graphState) error {
	limit := state.req.MaxResults
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}

	docs, err := s.store.Search(ctx, vector.CollectionGeneral, state.req.Query,
		vector.SearchFilter{AreaID: state.req.AreaID}, limit)
	if err != nil {
		return err
	}
	if state.req.UserID != "" {
		personal, perr := s.store.Search(ctx, vector.CollectionPersonal, state.req.Query,
			vector.SearchFilter{OwnerID: state.req.UserID, AreaID: state.req.AreaID}, limit)
		if perr != nil {
			s.logger.Debug("personal retrieval failed", zap.Error(perr))
		} else {
			docs = append(docs, personal...)
			vector.SortByScore(docs)
			if len(docs) > limit {
				docs = docs[:limit]
			}
		}
	}
	state.documents = docs

	if state.req.ConnectionID == "" && state.req.AreaID != "" {
		area, aerr := s.areas.Get(ctx, state.req.AreaID)
		if aerr == nil {
			if cid := area.Metadata["connection_id"]; cid != "" {
				state.req.ConnectionID = cid
				state.info["connection_from_area"] = cid
			}
		}
	}
	return nil
}

// identifyEntities seeds the entity set: exact table names first, fuzzy
// matches second, then the structural fallbacks for broader queries.
func (s *graphRAGService) identifyEntities(ctx context.Context, state *graphState) {
	if !s.graph.Available() || state.req.ConnectionID == "" {
		return
	}
	connectionID := state.req.ConnectionID

	seen := map[string]bool{}
	add := func(entities []models.GraphEntity, relevance float64) {
		for _, e := range entities {
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			e.Relevance = relevance
			state.entities = append(state.entities, e)
		}
	}

	for _, name := range state.mentionedTables {
		exact, err := s.graph.FindTables(ctx, connectionID, name, false)
		if err != nil {
			s.logger.Debug("exact table lookup failed", zap.String("table", name), zap.Error(err))
			continue
		}
		add(exact, 1.0)
	}
	if len(state.entities) == 0 {
		for _, name := range state.mentionedTables {
			fuzzy, err := s.graph.FindTables(ctx, connectionID, name, true)
			if err != nil {
				continue
			}
			add(fuzzy, 0.8)
		}
	}

	if len(state.entities) == 0 {
		if state.queryType == queryTypeExploration || state.queryType == queryTypeAnalysis {
			connected, err := s.graph.MostConnectedTables(ctx, connectionID, 5)
			if err == nil {
				add(connected, 0.6)
			}
		} else {
			richest, err := s.graph.RichestTables(ctx, connectionID, 3)
			if err == nil {
				add(richest, 0.5)
			}
		}
	}
	state.info["entities"] = fmt.Sprintf("%d", len(state.entities))
}

// shouldExplore is the first conditional edge.
func (s *graphRAGService) shouldExplore(state *graphState) bool {
	if !s.graph.Available() || state.req.ConnectionID == "" || len(state.entities) == 0 {
		return false
	}
	if state.queryType != queryTypeDirect {
		return true
	}
	return len(state.entities) >= 2
}

// explore pulls relations, pairwise paths for the top entities, and
// communities for analysis queries.
func (s *graphRAGService) explore(ctx context.Context, state *graphState) {
	connectionID := state.req.ConnectionID

	secondary := map[string]bool{}
	for _, e := range state.entities {
		secondary[e.Name] = true
	}
	primary := append([]models.GraphEntity(nil), state.entities...)
	for _, entity := range primary {
		relations, err := s.graph.RelationsFor(ctx, connectionID, entity.Name)
		if err != nil {
			s.logger.Debug("relation lookup failed", zap.String("table", entity.Name), zap.Error(err))
			continue
		}
		for _, rel := range relations {
			state.relations = append(state.relations, rel)
			if !secondary[rel.ToTable] {
				secondary[rel.ToTable] = true
				state.entities = append(state.entities, models.GraphEntity{
					Name:      rel.ToTable,
					Schema:    entity.Schema,
					Relevance: secondaryRelevance,
				})
			}
		}
	}

	top := primary
	if len(top) > maxPathEntities {
		top = top[:maxPathEntities]
	}
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			paths, err := s.graph.Paths(ctx, connectionID, top[i].Name, top[j].Name, state.depth)
			if err != nil || len(paths) == 0 {
				continue
			}
			// One path per pair.
			state.paths = append(state.paths, paths[0])
		}
	}

	if state.queryType == queryTypeAnalysis || state.req.IncludeCommunities {
		communities, err := s.graph.Communities(ctx, connectionID, maxCommunities)
		if err == nil {
			state.communities = communities
		}
	}
}

// shouldGenerateSubQueries is the second conditional edge.
func (s *graphRAGService) shouldGenerateSubQueries(state *graphState) bool {
	if len(state.paths) > 0 {
		return true
	}
	return len(state.entities) >= 2 && len(state.relations) >= 1
}

// generateSubQueries asks the model for up to three sub-questions and
// answers each one, through the graph for structural questions.
func (s *graphRAGService) generateSubQueries(ctx context.Context, state *graphState) {
	result, err := s.dispatcher.Generate(ctx, llm.GenerateRequest{
		Prompt:     state.req.Query,
		System:     subQuerySystemPrompt,
		ProviderID: state.req.ProviderID,
		AreaID:     state.req.AreaID,
	})
	if err != nil {
		s.logger.Debug("sub-query generation failed", zap.Error(err))
		return
	}

	var questions []string
	if err := json.Unmarshal([]byte(stripJSONFences(result.Text)), &questions); err != nil {
		s.logger.Debug("sub-query parse failed", zap.Error(err))
		return
	}
	if len(questions) > maxSubQueries {
		questions = questions[:maxSubQueries]
	}

	for _, question := range questions {
		answer := s.answerSubQuery(ctx, state, question)
		if answer == "" {
			continue
		}
		state.subAnswers = append(state.subAnswers, subQueryAnswer{Question: question, Answer: answer})
	}
	state.info["sub_queries"] = fmt.Sprintf("%d", len(state.subAnswers))
}

func (s *graphRAGService) answerSubQuery(ctx context.Context, state *graphState, question string) string {
	if isSchemaQuestion(question) && s.graph.Available() && state.req.ConnectionID != "" {
		if answer := s.answerViaGraph(ctx, state, question); answer != "" {
			return answer
		}
	}

	result, err := s.dispatcher.Generate(ctx, llm.GenerateRequest{
		Prompt:     BuildRAGPrompt(question, FormatDocumentContext(state.documents)),
		System:     ragSystemPrompt,
		ProviderID: state.req.ProviderID,
		AreaID:     state.req.AreaID,
	})
	if err != nil {
		s.logger.Debug("sub-query answer failed", zap.Error(err))
		return ""
	}
	return result.Text
}

// answerViaGraph has the model emit a parameterised graph query, runs it
// read-only and formats the first rows.
func (s *graphRAGService) answerViaGraph(ctx context.Context, state *graphState, question string) string {
	result, err := s.dispatcher.Generate(ctx, llm.GenerateRequest{
		Prompt:     question,
		System:     graphQuerySystemPrompt,
		ProviderID: state.req.ProviderID,
		AreaID:     state.req.AreaID,
	})
	if err != nil {
		return ""
	}

	var parsed struct {
		Query  string         `json:"query"`
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(result.Text)), &parsed); err != nil || parsed.Query == "" {
		return ""
	}
	if parsed.Params == nil {
		parsed.Params = map[string]any{}
	}
	parsed.Params["connection_id"] = state.req.ConnectionID

	rows, err := s.graph.RunQuery(ctx, parsed.Query, parsed.Params)
	if err != nil {
		s.logger.Debug("graph sub-query failed", zap.Error(err))
		return ""
	}
	return formatGraphRows(rows)
}

// aggregateContext concatenates the context blocks in their stable order:
// vector snippets, tables, connections, sub-query answers, communities.
func (s *graphRAGService) aggregateContext(state *graphState) string {
	var b strings.Builder

	b.WriteString(FormatDocumentContext(state.documents))

	if len(state.entities) > 0 {
		b.WriteString("\nTables:\n")
		for _, entity := range state.entities {
			fmt.Fprintf(&b, "- %s.%s", entity.Schema, entity.Name)
			if entity.Description != "" {
				fmt.Fprintf(&b, ": %s", entity.Description)
			}
			b.WriteString("\n")
			for _, rel := range state.relations {
				if rel.FromTable == entity.Name {
					fmt.Fprintf(&b, "  relates to %s via %s\n", rel.ToTable, rel.ViaColumns)
				} else if rel.ToTable == entity.Name {
					fmt.Fprintf(&b, "  referenced by %s via %s\n", rel.FromTable, rel.ViaColumns)
				}
			}
		}
	}

	if len(state.paths) > 0 {
		b.WriteString("\nConnections between tables:\n")
		for _, path := range state.paths {
			fmt.Fprintf(&b, "- %s (%d hops)\n", strings.Join(path.Tables, " -> "), path.Length)
		}
	}

	if len(state.subAnswers) > 0 {
		b.WriteString("\nAdditional information:\n")
		for _, sub := range state.subAnswers {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", sub.Question, sub.Answer)
		}
	}

	if state.queryType == queryTypeAnalysis && len(state.communities) > 0 {
		b.WriteString("\nTable communities:\n")
		for _, community := range state.communities {
			fmt.Fprintf(&b, "- community %d: %s\n", community.ID, strings.Join(community.Tables, ", "))
		}
	}
	return b.String()
}

func (s *graphRAGService) record(ctx context.Context, state *graphState, resp *QueryResponse) {
	rec := &models.QueryRecord{
		ID:               uuid.NewString(),
		Query:            state.req.Query,
		UserID:           state.req.UserID,
		ConnectionID:     state.req.ConnectionID,
		ProviderID:       resp.ProviderID,
		QueryType:        state.queryType,
		Answer:           resp.Answer,
		Sources:          resp.Sources,
		ProcessingTimeMS: resp.ProcessingTimeMS,
		ProcessingInfo:   resp.ProcessingInfo,
		Timestamp:        time.Now().UTC(),
	}
	if state.req.AreaID != "" {
		rec.AreaIDs = []string{state.req.AreaID}
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.logger.Warn("record query history", zap.Error(err))
	}
}

func clampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > 3 {
		return 3
	}
	return depth
}

// stripJSONFences removes a surrounding markdown code fence from a model
// response before parsing.
func stripJSONFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

var schemaQuestionMarkers = []string{
	"table", "column", "schema", "relation", "foreign key", "database", "join",
}

func isSchemaQuestion(question string) bool {
	lower := strings.ToLower(question)
	for _, marker := range schemaQuestionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// formatGraphRows renders a tabular graph result, first rows only.
func formatGraphRows(rows []map[string]any) string {
	if len(rows) == 0 {
		return ""
	}
	shown := rows
	if len(shown) > maxSubQueryRows {
		shown = shown[:maxSubQueryRows]
	}
	var b strings.Builder
	for _, row := range shown {
		pairs := make([]string, 0, len(row))
		for key, value := range row {
			pairs = append(pairs, fmt.Sprintf("%s=%v", key, value))
		}
		sort.Strings(pairs)
		b.WriteString(strings.Join(pairs, ", "))
		b.WriteString("\n")
	}
	if extra := len(rows) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "... and %d more\n", extra)
	}
	return b.String()
}
