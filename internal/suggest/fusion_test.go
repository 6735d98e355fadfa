package suggest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbi/internal/errors"
	"chatbi/internal/models"
	"chatbi/internal/search"
	"chatbi/internal/vector"
)

type fakeKeywordSource struct {
	hits []search.SearchHit
	err  error
	got  int
}

func (f *fakeKeywordSource) KeywordSearch(ctx context.Context, query string, limit int) ([]search.SearchHit, error) {
	f.got = limit
	return f.hits, f.err
}

type fakeVectorSource struct {
	hits []vector.VectorHit
	err  error
}

func (f *fakeVectorSource) Query(ctx context.Context, embedding []float32, limit int) ([]vector.VectorHit, error) {
	return f.hits, f.err
}

type fakeEncoder struct {
	err error
}

func (f *fakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func defaultOptions() FusionOptions {
	return FusionOptions{
		KeywordWeight: 0.7,
		VectorWeight:  0.3,
		MinScore:      0.1,
		Limit:         10,
	}
}

func TestFusionSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("同一文档的双路得分加权合并", func(t *testing.T) {
		keyword := &fakeKeywordSource{hits: []search.SearchHit{
			{DocID: "doc-1", Text: "查询本月销售额", Score: 5.0},
		}}
		vectors := &fakeVectorSource{hits: []vector.VectorHit{
			{DocID: "doc-1", Text: "查询本月销售额", Similarity: 0.8},
		}}
		fusion := NewFusion(keyword, vectors, &fakeEncoder{})

		result := fusion.Search(ctx, "查询本月", defaultOptions())
		require.Len(t, result.Suggestions, 1)

		// 5.0*0.7 + 0.8*0.3 = 3.74
		assert.InDelta(t, 3.74, result.Suggestions[0].Score, 1e-9)
		assert.Equal(t, models.SourceHybrid, result.Suggestions[0].Source)
	})

	t.Run("按两倍预算召回", func(t *testing.T) {
		keyword := &fakeKeywordSource{}
		fusion := NewFusion(keyword, nil, nil)

		opts := defaultOptions()
		opts.Limit = 10
		fusion.Search(ctx, "查询", opts)
		assert.Equal(t, 20, keyword.got)
	})

	t.Run("单路命中的文档另一路得分为零", func(t *testing.T) {
		keyword := &fakeKeywordSource{hits: []search.SearchHit{
			{DocID: "doc-1", Text: "查询销售额", Score: 2.0},
		}}
		vectors := &fakeVectorSource{hits: []vector.VectorHit{
			{DocID: "doc-2", Text: "销售额趋势分析", Similarity: 0.9},
		}}
		fusion := NewFusion(keyword, vectors, &fakeEncoder{})

		result := fusion.Search(ctx, "销售额", defaultOptions())
		require.Len(t, result.Suggestions, 2)

		assert.Equal(t, "查询销售额", result.Suggestions[0].Text)
		assert.InDelta(t, 1.4, result.Suggestions[0].Score, 1e-9)
		assert.Equal(t, models.SourceKeyword, result.Suggestions[0].Source)
		assert.Equal(t, "销售额趋势分析", result.Suggestions[1].Text)
		assert.InDelta(t, 0.27, result.Suggestions[1].Score, 1e-9)
		assert.Equal(t, models.SourceVector, result.Suggestions[1].Source)
	})

	t.Run("低于阈值的候选被过滤", func(t *testing.T) {
		vectors := &fakeVectorSource{hits: []vector.VectorHit{
			{DocID: "doc-1", Text: "弱相关建议", Similarity: 0.2},
		}}
		fusion := NewFusion(&fakeKeywordSource{}, vectors, &fakeEncoder{})

		result := fusion.Search(ctx, "查询", defaultOptions())
		assert.Empty(t, result.Suggestions)
	})

	t.Run("结果按得分降序截断", func(t *testing.T) {
		keyword := &fakeKeywordSource{hits: []search.SearchHit{
			{DocID: "doc-1", Text: "建议一", Score: 1.0},
			{DocID: "doc-2", Text: "建议二", Score: 3.0},
			{DocID: "doc-3", Text: "建议三", Score: 2.0},
		}}
		fusion := NewFusion(keyword, nil, nil)

		opts := defaultOptions()
		opts.Limit = 2
		result := fusion.Search(ctx, "建议", opts)

		require.Len(t, result.Suggestions, 2)
		assert.Equal(t, "建议二", result.Suggestions[0].Text)
		assert.Equal(t, "建议三", result.Suggestions[1].Text)
	})

	t.Run("得分相同时保持首次出现顺序", func(t *testing.T) {
		keyword := &fakeKeywordSource{hits: []search.SearchHit{
			{DocID: "doc-a", Text: "建议甲", Score: 2.0},
			{DocID: "doc-b", Text: "建议乙", Score: 2.0},
		}}
		fusion := NewFusion(keyword, nil, nil)

		for i := 0; i < 5; i++ {
			result := fusion.Search(ctx, "建议", defaultOptions())
			require.Len(t, result.Suggestions, 2)
			assert.Equal(t, "建议甲", result.Suggestions[0].Text)
			assert.Equal(t, "建议乙", result.Suggestions[1].Text)
		}
	})

	t.Run("关键词源失败时降级为向量单路", func(t *testing.T) {
		keyword := &fakeKeywordSource{err: errors.ErrSearchQuery("cluster down", nil)}
		vectors := &fakeVectorSource{hits: []vector.VectorHit{
			{DocID: "doc-1", Text: "查询销售额", Similarity: 0.9},
		}}
		fusion := NewFusion(keyword, vectors, &fakeEncoder{})

		result := fusion.Search(ctx, "销售额", defaultOptions())
		require.Len(t, result.Suggestions, 1)
		assert.InDelta(t, 0.27, result.Suggestions[0].Score, 1e-9)

		require.Len(t, result.Outcomes, 2)
		assert.Error(t, result.Outcomes[0].Err)
		assert.NoError(t, result.Outcomes[1].Err)
	})

	t.Run("向量化失败时降级为关键词单路", func(t *testing.T) {
		keyword := &fakeKeywordSource{hits: []search.SearchHit{
			{DocID: "doc-1", Text: "查询销售额", Score: 2.0},
		}}
		vectors := &fakeVectorSource{hits: []vector.VectorHit{
			{DocID: "doc-2", Text: "不应出现", Similarity: 0.9},
		}}
		encoder := &fakeEncoder{err: errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeEmbeddingFailed, "encode failed")}
		fusion := NewFusion(keyword, vectors, encoder)

		result := fusion.Search(ctx, "销售额", defaultOptions())
		require.Len(t, result.Suggestions, 1)
		assert.Equal(t, "查询销售额", result.Suggestions[0].Text)
		assert.Error(t, result.Outcomes[1].Err)
	})

	t.Run("空查询返回空结果", func(t *testing.T) {
		fusion := NewFusion(&fakeKeywordSource{}, nil, nil)
		result := fusion.Search(ctx, "", defaultOptions())
		assert.Empty(t, result.Suggestions)
	})
}

func TestVectorOnly(t *testing.T) {
	ctx := context.Background()

	t.Run("按相似度过滤排序", func(t *testing.T) {
		vectors := &fakeVectorSource{hits: []vector.VectorHit{
			{DocID: "doc-1", Text: "相似查询一", Similarity: 0.6},
			{DocID: "doc-2", Text: "相似查询二", Similarity: 0.9},
			{DocID: "doc-3", Text: "弱相关", Similarity: 0.05},
		}}
		fusion := NewFusion(nil, vectors, &fakeEncoder{})

		suggestions, err := fusion.VectorOnly(ctx, "查询", 0.1, 10)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)

		assert.Equal(t, "相似查询二", suggestions[0].Text)
		assert.Equal(t, models.SourceVector, suggestions[0].Source)
	})

	t.Run("排除输入查询并按文本去重", func(t *testing.T) {
		vectors := &fakeVectorSource{hits: []vector.VectorHit{
			{DocID: "doc-1", Text: "销售额", Similarity: 1.0},
			{DocID: "doc-2", Text: "销售额分析", Similarity: 0.9},
			{DocID: "doc-3", Text: "销售额分析", Similarity: 0.8},
			{DocID: "doc-4", Text: "Revenue Trend", Similarity: 0.7},
			{DocID: "doc-5", Text: "revenue trend", Similarity: 0.6},
		}}
		fusion := NewFusion(nil, vectors, &fakeEncoder{})

		suggestions, err := fusion.VectorOnly(ctx, "销售额", 0.1, 10)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)

		assert.Equal(t, "销售额分析", suggestions[0].Text)
		assert.Equal(t, "Revenue Trend", suggestions[1].Text)
	})

	t.Run("向量路不可用时返回空", func(t *testing.T) {
		fusion := NewFusion(&fakeKeywordSource{}, nil, nil)
		suggestions, err := fusion.VectorOnly(ctx, "查询", 0.1, 10)
		require.NoError(t, err)
		assert.Nil(t, suggestions)
	})
}
