package suggest

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"chatbi/internal/logger"
	"chatbi/internal/models"
	"chatbi/internal/search"
	"chatbi/internal/vector"
)

// KeywordSource 关键词候选源
type KeywordSource interface {
	KeywordSearch(ctx context.Context, query string, limit int) ([]search.SearchHit, error)
}

// VectorSource 向量候选源
type VectorSource interface {
	Query(ctx context.Context, embedding []float32, limit int) ([]vector.VectorHit, error)
}

// Encoder 查询向量化
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// FusionOptions 融合检索参数
type FusionOptions struct {
	KeywordWeight float64
	VectorWeight  float64
	MinScore      float64
	Limit         int
}

// SourceOutcome 单个候选源的执行结果，候选源失败时降级为空贡献而不是中断请求
type SourceOutcome struct {
	Source string
	Hits   int
	Err    error
}

// FusionResult 融合检索结果
type FusionResult struct {
	Suggestions []models.Suggestion
	Outcomes    []SourceOutcome
}

// Fusion 双路召回融合器，按文档ID归并关键词和向量得分
type Fusion struct {
	keyword KeywordSource
	vectors VectorSource
	encoder Encoder
	logger  *logger.Logger
}

// NewFusion 创建融合器，向量源和编码器可为nil表示该路不可用
func NewFusion(keyword KeywordSource, vectors VectorSource, encoder Encoder) *Fusion {
	return &Fusion{
		keyword: keyword,
		vectors: vectors,
		encoder: encoder,
		logger:  logger.NewLogger("fusion"),
	}
}

// Search 执行双路融合检索
// 每路按两倍预算召回，归并后按加权得分过滤排序截断
func (f *Fusion) Search(ctx context.Context, query string, opts FusionOptions) *FusionResult {
	if query == "" || opts.Limit <= 0 {
		return &FusionResult{}
	}

	fetchLimit := opts.Limit * 2

	var keywordHits []search.SearchHit
	var vectorHits []vector.VectorHit
	var keywordErr, vectorErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if f.keyword == nil {
			return nil
		}
		keywordHits, keywordErr = f.keyword.KeywordSearch(gctx, query, fetchLimit)
		return nil
	})
	g.Go(func() error {
		if f.vectors == nil || f.encoder == nil {
			return nil
		}
		embedding, err := f.encoder.Encode(gctx, query)
		if err != nil {
			vectorErr = err
			return nil
		}
		vectorHits, vectorErr = f.vectors.Query(gctx, embedding, fetchLimit)
		return nil
	})
	g.Wait()

	outcomes := []SourceOutcome{
		{Source: models.SourceKeyword, Hits: len(keywordHits), Err: keywordErr},
		{Source: models.SourceVector, Hits: len(vectorHits), Err: vectorErr},
	}
	if keywordErr != nil {
		f.logger.WithError(keywordErr).Warn("Keyword source degraded to empty contribution", logger.Fields{
			"query": query,
		})
		keywordHits = nil
	}
	if vectorErr != nil {
		f.logger.WithError(vectorErr).Warn("Vector source degraded to empty contribution", logger.Fields{
			"query": query,
		})
		vectorHits = nil
	}

	merged := f.merge(keywordHits, vectorHits, opts)

	f.logger.Debug("Fusion search completed", logger.Fields{
		"query":        query,
		"keyword_hits": len(keywordHits),
		"vector_hits":  len(vectorHits),
		"merged":       len(merged),
	})

	return &FusionResult{Suggestions: merged, Outcomes: outcomes}
}

// merge 按文档ID归并双路得分
func (f *Fusion) merge(keywordHits []search.SearchHit, vectorHits []vector.VectorHit, opts FusionOptions) []models.Suggestion {
	candidates := make(map[string]*models.Candidate)
	order := make([]string, 0, len(keywordHits)+len(vectorHits))

	for _, hit := range keywordHits {
		candidate, ok := candidates[hit.DocID]
		if !ok {
			candidate = &models.Candidate{
				DocID:    hit.DocID,
				Text:     hit.Text,
				Keywords: hit.Keywords,
				Metadata: hit.Metadata,
				Source:   models.SourceKeyword,
			}
			candidates[hit.DocID] = candidate
			order = append(order, hit.DocID)
		}
		candidate.KeywordScore = hit.Score
	}

	for _, hit := range vectorHits {
		candidate, ok := candidates[hit.DocID]
		if !ok {
			candidate = &models.Candidate{
				DocID:    hit.DocID,
				Text:     hit.Text,
				Metadata: hit.Metadata,
				Source:   models.SourceVector,
			}
			candidates[hit.DocID] = candidate
			order = append(order, hit.DocID)
		} else {
			candidate.Source = models.SourceHybrid
		}
		candidate.VectorScore = hit.Similarity
		if candidate.Text == "" {
			candidate.Text = hit.Text
		}
	}

	suggestions := make([]models.Suggestion, 0, len(order))
	for _, docID := range order {
		candidate := candidates[docID]
		candidate.Score = candidate.KeywordScore*opts.KeywordWeight + candidate.VectorScore*opts.VectorWeight

		if candidate.Score < opts.MinScore {
			continue
		}
		suggestions = append(suggestions, candidate.ToSuggestion())
	}

	// 得分相同的候选按文档首次出现的顺序稳定排列
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})

	if len(suggestions) > opts.Limit {
		suggestions = suggestions[:opts.Limit]
	}
	return suggestions
}

// VectorOnly 仅向量路的相似检索，用于相似查询场景
// 排除与输入查询一致的命中并按文本去重，比较均不区分大小写
func (f *Fusion) VectorOnly(ctx context.Context, query string, minScore float64, limit int) ([]models.Suggestion, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}
	if f.vectors == nil || f.encoder == nil {
		return nil, nil
	}

	embedding, err := f.encoder.Encode(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := f.vectors.Query(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(hits))
	suggestions := make([]models.Suggestion, 0, len(hits))
	for _, hit := range hits {
		text := strings.TrimSpace(hit.Text)
		if text == "" || strings.EqualFold(text, query) {
			continue
		}
		key := strings.ToLower(text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if hit.Similarity < minScore {
			continue
		}
		suggestions = append(suggestions, models.Suggestion{
			Text:     hit.Text,
			Score:    hit.Similarity,
			Source:   models.SourceVector,
			Metadata: hit.Metadata,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	return suggestions, nil
}
