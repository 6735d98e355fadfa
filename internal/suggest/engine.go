package suggest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
	"chatbi/internal/models"
)

// Personalizer 个性化加权能力
type Personalizer interface {
	TrackSelection(ctx context.Context, userID, query, selected string) error
	Apply(ctx context.Context, userID, query string, suggestions []models.Suggestion) []models.Suggestion
	UserPreferences(ctx context.Context, userID string, limit int) ([]string, error)
	RecentHistory(ctx context.Context, userID string, limit int) ([]models.HistoryEntry, error)
}

// SequenceSource 查询序列挖掘能力
type SequenceSource interface {
	Record(ctx context.Context, userID, previousQuery, currentQuery string) error
	Next(ctx context.Context, userID, query string, limit int) ([]models.Suggestion, error)
	Previous(ctx context.Context, userID, query string, limit int) ([]models.Suggestion, error)
}

// RelatedGenerator LLM相关查询生成能力
type RelatedGenerator interface {
	IsAvailable() bool
	GenerateRelated(ctx context.Context, query string, limit int) ([]models.Suggestion, error)
}

// Indexer 建议文档索引写入
type Indexer interface {
	IndexDocument(ctx context.Context, doc *models.Document) error
	BulkIndexDocuments(ctx context.Context, docs []*models.Document) (int, int, error)
}

// VectorIndexer 向量库写入
type VectorIndexer interface {
	Add(ctx context.Context, docID, text string, embedding []float32, metadata map[string]interface{}) error
	AddBatch(ctx context.Context, docIDs, texts []string, embeddings [][]float32, metadatas []map[string]interface{}) error
}

// BatchEncoder 批量向量化能力
type BatchEncoder interface {
	Encoder
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// PrefixMode 前缀保持补全能力
type PrefixMode interface {
	Complete(ctx context.Context, query string, limit int) ([]models.Suggestion, bool)
}

// Engine 推荐引擎，编排融合检索、个性化、序列挖掘和LLM扩展
type Engine struct {
	fusion       *Fusion
	merger       *Merger
	personalizer Personalizer
	sequences    SequenceSource
	related      RelatedGenerator
	prefix       PrefixMode
	indexer      Indexer
	vectorIndex  VectorIndexer
	encoder      BatchEncoder
	config       config.AutocompleteConfig
	logger       *logger.Logger
}

// EngineDeps 引擎依赖
type EngineDeps struct {
	Fusion       *Fusion
	Personalizer Personalizer
	Sequences    SequenceSource
	Related      RelatedGenerator
	Prefix       PrefixMode
	Indexer      Indexer
	VectorIndex  VectorIndexer
	Encoder      BatchEncoder
}

// NewEngine 创建推荐引擎
func NewEngine(deps EngineDeps, cfg *config.AutocompleteConfig) *Engine {
	return &Engine{
		fusion:       deps.Fusion,
		merger:       NewMerger(),
		personalizer: deps.Personalizer,
		sequences:    deps.Sequences,
		related:      deps.Related,
		prefix:       deps.Prefix,
		indexer:      deps.Indexer,
		vectorIndex:  deps.VectorIndex,
		encoder:      deps.Encoder,
		config:       *cfg,
		logger:       logger.NewLogger("engine"),
	}
}

func (e *Engine) resolveLimit(requested int) int {
	limit := requested
	if limit <= 0 || limit > e.config.MaxSuggestions {
		limit = e.config.MaxSuggestions
	}
	if limit <= 0 {
		limit = 10
	}
	return limit
}

// GetSuggestions 自动补全主入口
// 长查询优先走前缀保持补全，常规查询走双路融合加个性化加权
func (e *Engine) GetSuggestions(ctx context.Context, req *models.AutocompleteRequest) *models.SuggestionResponse {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return &models.SuggestionResponse{Query: req.Query, Suggestions: []models.Suggestion{}}
	}
	limit := e.resolveLimit(req.Limit)

	if e.config.EnablePrefixPreserving && e.prefix != nil {
		if suggestions, handled := e.prefix.Complete(ctx, query, limit); handled {
			e.logger.Info("Prefix preserving completion served", logger.Fields{
				"query": query,
				"count": len(suggestions),
			})
			if suggestions == nil {
				suggestions = []models.Suggestion{}
			}
			return &models.SuggestionResponse{
				Query:       req.Query,
				Suggestions: suggestions,
				Total:       len(suggestions),
			}
		}
	}

	// 融合结果保留两倍预算，截断发生在个性化加权之后
	result := e.fusion.Search(ctx, query, FusionOptions{
		KeywordWeight: e.config.KeywordWeight,
		VectorWeight:  e.config.VectorWeight,
		MinScore:      e.config.MinScore,
		Limit:         limit * 2,
	})

	suggestions := result.Suggestions
	if e.config.EnablePersonalization && e.personalizer != nil {
		suggestions = e.personalizer.Apply(ctx, req.UserID, query, suggestions)
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}

	return &models.SuggestionResponse{
		Query:       req.Query,
		Suggestions: suggestions,
		Total:       len(suggestions),
	}
}

// GetSimilarQueries 相似查询，仅向量路召回加个性化加权
func (e *Engine) GetSimilarQueries(ctx context.Context, query, userID string, limit int) *models.SimilarQueriesResponse {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return &models.SimilarQueriesResponse{Query: query, SimilarQueries: []models.Suggestion{}}
	}
	limit = e.resolveLimit(limit)

	suggestions, err := e.fusion.VectorOnly(ctx, trimmed, e.config.MinScore, limit*2)
	if err != nil {
		e.logger.WithError(err).Warn("Similar queries degraded to empty result", logger.Fields{
			"query": trimmed,
		})
		suggestions = nil
	}

	if e.config.EnablePersonalization && e.personalizer != nil {
		suggestions = e.personalizer.Apply(ctx, userID, trimmed, suggestions)
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}

	return &models.SimilarQueriesResponse{
		Query:          query,
		SimilarQueries: suggestions,
		Total:          len(suggestions),
	}
}

// GetRelatedQueries 相关查询推荐
// 并发收集LLM生成、序列转移、融合检索和用户高频选择，按优先级合并
func (e *Engine) GetRelatedQueries(ctx context.Context, query, userID string, limit int) *models.RelatedQueriesResponse {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return &models.RelatedQueriesResponse{Query: query, RelatedQueries: []models.Suggestion{}}
	}
	limit = e.resolveLimit(limit)
	llmLimit := e.config.LLMResultLimit
	if llmLimit <= 0 {
		llmLimit = limit
	}

	var llmGroup, nextGroup, prevGroup, hybridGroup, historyGroup []models.Suggestion

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if e.related == nil || !e.related.IsAvailable() {
			return nil
		}
		suggestions, err := e.related.GenerateRelated(gctx, trimmed, llmLimit)
		if err != nil {
			e.logger.WithError(err).Warn("LLM related generation degraded to empty contribution")
			return nil
		}
		llmGroup = suggestions
		return nil
	})
	g.Go(func() error {
		if e.sequences == nil {
			return nil
		}
		next, err := e.sequences.Next(gctx, userID, trimmed, limit)
		if err != nil {
			e.logger.WithError(err).Warn("Sequence next lookup degraded to empty contribution")
			return nil
		}
		nextGroup = next
		return nil
	})
	g.Go(func() error {
		if e.sequences == nil {
			return nil
		}
		prev, err := e.sequences.Previous(gctx, userID, trimmed, limit)
		if err != nil {
			e.logger.WithError(err).Warn("Sequence previous lookup degraded to empty contribution")
			return nil
		}
		prevGroup = prev
		return nil
	})
	g.Go(func() error {
		result := e.fusion.Search(gctx, trimmed, FusionOptions{
			KeywordWeight: e.config.RelatedKeywordWeight,
			VectorWeight:  e.config.RelatedVectorWeight,
			MinScore:      e.config.MinScore,
			Limit:         limit,
		})
		hybridGroup = result.Suggestions
		return nil
	})
	g.Go(func() error {
		if e.personalizer == nil || userID == "" {
			return nil
		}
		prefs, err := e.personalizer.UserPreferences(gctx, userID, limit)
		if err != nil {
			e.logger.WithError(err).Warn("History preferences lookup degraded to empty contribution")
			return nil
		}
		for _, pref := range prefs {
			historyGroup = append(historyGroup, models.Suggestion{
				Text:   pref,
				Score:  e.config.HistoryFillScore,
				Source: models.SourceHistory,
			})
		}
		return nil
	})
	g.Wait()

	merged := e.merger.Merge(trimmed, limit,
		ExpansionGroup{Priority: PriorityLLM, Suggestions: llmGroup},
		ExpansionGroup{Priority: PrioritySequenceNext, Suggestions: nextGroup},
		ExpansionGroup{Priority: PrioritySequencePrev, Suggestions: prevGroup},
		ExpansionGroup{Priority: PriorityHybrid, Suggestions: hybridGroup},
		ExpansionGroup{Priority: PriorityHistory, Suggestions: historyGroup},
	)
	if merged == nil {
		merged = []models.Suggestion{}
	}

	return &models.RelatedQueriesResponse{
		Query:          query,
		RelatedQueries: merged,
		Total:          len(merged),
	}
}

// RecordFeedback 记录用户选择反馈，任一写入失败即返回错误
// 转移边的前查询取自用户最近一条历史，读取须发生在本次选择入栈之前
func (e *Engine) RecordFeedback(ctx context.Context, req *models.FeedbackRequest) error {
	if strings.TrimSpace(req.Query) == "" || strings.TrimSpace(req.Selected) == "" {
		return errors.ErrValidationFailed("feedback", "query and selected_suggestion cannot be empty")
	}

	previousQuery := ""
	if e.personalizer != nil && req.UserID != "" {
		entries, err := e.personalizer.RecentHistory(ctx, req.UserID, 1)
		if err != nil {
			e.logger.WithError(err).Warn("Recent history lookup failed, transition not recorded", logger.Fields{
				"user_id": req.UserID,
			})
		} else if len(entries) > 0 {
			previousQuery = entries[0].Query
		}
	}

	if e.personalizer != nil {
		if err := e.personalizer.TrackSelection(ctx, req.UserID, req.Query, req.Selected); err != nil {
			return err
		}
	}
	if e.sequences != nil {
		if err := e.sequences.Record(ctx, req.UserID, previousQuery, req.Query); err != nil {
			return err
		}
	}

	e.logger.Debug("Feedback recorded", logger.Fields{
		"query":   req.Query,
		"user_id": req.UserID,
	})
	return nil
}

// documentID 未指定ID时取文本的md5摘要，同文本写入落到同一文档
func documentID(req *models.DocumentRequest) string {
	if req.ID != "" {
		return req.ID
	}
	sum := md5.Sum([]byte(req.Text))
	return hex.EncodeToString(sum[:])
}

// AddDocument 写入单个建议文档，关键词索引和向量库共用同一文档ID
// 向量写入失败时降级为仅关键词召回并记录日志
func (e *Engine) AddDocument(ctx context.Context, req *models.DocumentRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", errors.ErrValidationFailed("text", "cannot be empty")
	}

	docID := documentID(req)
	now := time.Now()
	doc := &models.Document{
		ID:        docID,
		Text:      req.Text,
		Keywords:  req.Keywords,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.indexer.IndexDocument(ctx, doc); err != nil {
		return "", err
	}

	if e.vectorIndex != nil && e.encoder != nil {
		embedding, err := e.encoder.Encode(ctx, req.Text)
		if err == nil {
			err = e.vectorIndex.Add(ctx, docID, req.Text, embedding, req.Metadata)
		}
		if err != nil {
			e.logger.WithError(err).Warn("Vector indexing failed, document available for keyword recall only", logger.Fields{
				"doc_id": docID,
			})
		}
	}

	return docID, nil
}

// BulkAddDocuments 批量写入建议文档
func (e *Engine) BulkAddDocuments(ctx context.Context, req *models.BulkDocumentRequest) (*models.BulkDocumentResponse, error) {
	if len(req.Documents) == 0 {
		return nil, errors.ErrValidationFailed("documents", "cannot be empty")
	}

	now := time.Now()
	docs := make([]*models.Document, 0, len(req.Documents))
	for i := range req.Documents {
		item := &req.Documents[i]
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		docs = append(docs, &models.Document{
			ID:        documentID(item),
			Text:      item.Text,
			Keywords:  item.Keywords,
			Metadata:  item.Metadata,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if len(docs) == 0 {
		return nil, errors.ErrValidationFailed("documents", "no valid documents")
	}

	success, failed, err := e.indexer.BulkIndexDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}

	if e.vectorIndex != nil && e.encoder != nil {
		texts := make([]string, len(docs))
		docIDs := make([]string, len(docs))
		metadatas := make([]map[string]interface{}, len(docs))
		for i, doc := range docs {
			texts[i] = doc.Text
			docIDs[i] = doc.ID
			metadatas[i] = doc.Metadata
		}

		embeddings, err := e.encoder.EncodeBatch(ctx, texts)
		if err == nil {
			err = e.vectorIndex.AddBatch(ctx, docIDs, texts, embeddings, metadatas)
		}
		if err != nil {
			e.logger.WithError(err).Warn("Vector batch indexing failed, documents available for keyword recall only", logger.Fields{
				"batch_size": len(docs),
			})
		}
	}

	return &models.BulkDocumentResponse{
		SuccessCount: success,
		ErrorCount:   failed + (len(req.Documents) - len(docs)),
	}, nil
}
