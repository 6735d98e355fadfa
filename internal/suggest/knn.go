package suggest

import (
	"context"

	"chatbi/internal/search"
	"chatbi/internal/vector"
)

// KNNSource 以搜索索引的knn能力充当向量路，用于未部署独立向量库的场景
// 同时实现向量查询和向量写入，写入表现为对已索引文档补写向量字段
type KNNSource struct {
	client *search.Client
}

// NewKNNSource 创建knn后备向量源
func NewKNNSource(client *search.Client) *KNNSource {
	return &KNNSource{client: client}
}

// Query 近邻检索，knn得分直接作为相似度
func (s *KNNSource) Query(ctx context.Context, embedding []float32, limit int) ([]vector.VectorHit, error) {
	hits, err := s.client.VectorSearch(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	results := make([]vector.VectorHit, 0, len(hits))
	for _, hit := range hits {
		results = append(results, vector.VectorHit{
			DocID:      hit.DocID,
			Text:       hit.Text,
			Similarity: hit.Score,
			Metadata:   hit.Metadata,
		})
	}
	return results, nil
}

// Add 补写单个文档的向量字段，文档本体已由关键词索引写入
func (s *KNNSource) Add(ctx context.Context, docID, text string, embedding []float32, metadata map[string]interface{}) error {
	return s.client.UpdateEmbedding(ctx, docID, embedding)
}

// AddBatch 逐个补写向量字段，返回最后一个失败
func (s *KNNSource) AddBatch(ctx context.Context, docIDs, texts []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	var lastErr error
	for i, docID := range docIDs {
		if i >= len(embeddings) {
			break
		}
		if err := s.client.UpdateEmbedding(ctx, docID, embeddings[i]); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
