package vector

import (
	"context"
	"fmt"
	"time"

	chroma "github.com/amikos-tech/chroma-go"
	"github.com/amikos-tech/chroma-go/types"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
)

// VectorHit 向量检索命中
type VectorHit struct {
	DocID      string
	Text       string
	Similarity float64
	Metadata   map[string]interface{}
}

// ChromaSource 向量候选源，基于Chroma集合做余弦相似度检索
type ChromaSource struct {
	client     *chroma.Client
	collection *chroma.Collection
	config     config.VectorDBConfig
	logger     *logger.Logger
}

// NewChromaSource 创建向量候选源
func NewChromaSource(cfg *config.VectorDBConfig) (*ChromaSource, error) {
	chromaLogger := logger.NewLogger("chroma")

	serverURL := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	client, err := chroma.NewClient(chroma.WithBasePath(serverURL))
	if err != nil {
		biErr := errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to create Chroma client").
			WithCause(err).
			WithContext(map[string]interface{}{
				"server_url": serverURL,
			})
		chromaLogger.LogChatBIError(biErr, "Chroma client creation failed")
		return nil, biErr
	}

	source := &ChromaSource{
		client: client,
		config: *cfg,
		logger: chromaLogger,
	}

	if err := source.initializeCollection(); err != nil {
		return nil, err
	}

	chromaLogger.Info("Chroma source initialized", logger.Fields{
		"server_url": serverURL,
		"collection": cfg.Collection,
		"batch_size": cfg.BatchSize,
	})

	return source, nil
}

// initializeCollection 初始化或获取集合
func (cs *ChromaSource) initializeCollection() error {
	ctx, cancel := context.WithTimeout(context.Background(), cs.config.Timeout)
	defer cancel()

	collection, err := cs.client.GetCollection(ctx, cs.config.Collection, nil)
	if err != nil {
		cs.logger.Info("Collection not found, creating new collection", logger.Fields{
			"collection": cs.config.Collection,
		})

		metadata := map[string]interface{}{
			"description": "ChatBI query suggestion vectors",
			"created_at":  time.Now().Unix(),
		}

		collection, err = cs.client.CreateCollection(ctx, cs.config.Collection, metadata, true, nil, types.COSINE)
		if err != nil {
			biErr := errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to create Chroma collection").
				WithCause(err).
				WithContext(map[string]interface{}{
					"collection": cs.config.Collection,
				})
			cs.logger.LogChatBIError(biErr, "Collection creation failed")
			return biErr
		}
	}

	cs.collection = collection
	return nil
}

// Add 添加建议文本及其向量
func (cs *ChromaSource) Add(ctx context.Context, docID, text string, embedding []float32, metadata map[string]interface{}) error {
	if docID == "" {
		return errors.ErrValidationFailed("doc_id", "cannot be empty")
	}
	if len(embedding) == 0 {
		return errors.ErrValidationFailed("embedding", "cannot be empty")
	}

	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["indexed_at"] = time.Now().Unix()

	embeddingData := make([]interface{}, len(embedding))
	for i, v := range embedding {
		embeddingData[i] = v
	}
	emb, err := types.NewEmbedding(embeddingData)
	if err != nil {
		return errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to build embedding").
			WithCause(err).
			WithContext(map[string]interface{}{
				"doc_id": docID,
			})
	}

	_, err = cs.collection.Add(ctx, []*types.Embedding{emb}, []map[string]interface{}{metadata}, []string{text}, []string{docID})
	if err != nil {
		biErr := errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to add document to Chroma").
			WithCause(err).
			WithContext(map[string]interface{}{
				"doc_id":     docID,
				"collection": cs.config.Collection,
			})
		cs.logger.LogChatBIError(biErr, "Vector add failed")
		return biErr
	}

	cs.logger.Debug("Vector document added", logger.Fields{
		"doc_id": docID,
	})
	return nil
}

// AddBatch 批量添加建议文本，各切片按下标对齐
func (cs *ChromaSource) AddBatch(ctx context.Context, docIDs, texts []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	if len(docIDs) == 0 {
		return errors.ErrValidationFailed("doc_ids", "cannot be empty")
	}
	if len(docIDs) != len(texts) || len(docIDs) != len(embeddings) {
		return errors.ErrValidationFailed("batch", "doc_ids, texts and embeddings must have equal length")
	}

	embs := make([]*types.Embedding, len(docIDs))
	metas := make([]map[string]interface{}, len(docIDs))
	now := time.Now().Unix()

	for i := range docIDs {
		if docIDs[i] == "" {
			return errors.ErrValidationFailed("doc_id", fmt.Sprintf("document at index %d has empty ID", i))
		}
		if len(embeddings[i]) == 0 {
			return errors.ErrValidationFailed("embedding", fmt.Sprintf("document at index %d has empty embedding", i))
		}

		embeddingData := make([]interface{}, len(embeddings[i]))
		for j, v := range embeddings[i] {
			embeddingData[j] = v
		}
		emb, err := types.NewEmbedding(embeddingData)
		if err != nil {
			return errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to build embedding").
				WithCause(err).
				WithContext(map[string]interface{}{
					"index":  i,
					"doc_id": docIDs[i],
				})
		}
		embs[i] = emb

		if metadatas != nil && i < len(metadatas) && metadatas[i] != nil {
			metas[i] = metadatas[i]
		} else {
			metas[i] = make(map[string]interface{})
		}
		metas[i]["indexed_at"] = now
	}

	_, err := cs.collection.Add(ctx, embs, metas, texts, docIDs)
	if err != nil {
		biErr := errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to add documents batch to Chroma").
			WithCause(err).
			WithContext(map[string]interface{}{
				"batch_size": len(docIDs),
				"collection": cs.config.Collection,
			})
		cs.logger.LogChatBIError(biErr, "Vector batch add failed")
		return biErr
	}

	cs.logger.Info("Vector documents batch added", logger.Fields{
		"batch_size": len(docIDs),
	})
	return nil
}

// Query 按向量做相似度检索，相似度为1减余弦距离
func (cs *ChromaSource) Query(ctx context.Context, embedding []float32, limit int) ([]VectorHit, error) {
	if len(embedding) == 0 {
		return nil, errors.ErrValidationFailed("embedding", "cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	embeddingData := make([]interface{}, len(embedding))
	for i, v := range embedding {
		embeddingData[i] = v
	}
	queryEmbedding, err := types.NewEmbedding(embeddingData)
	if err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to build query embedding").
			WithCause(err)
	}

	queryResult, err := cs.collection.QueryWithOptions(ctx,
		types.WithQueryEmbedding(queryEmbedding),
		types.WithNResults(int32(limit)),
		types.WithInclude(types.IDocuments, types.IMetadatas, types.IDistances),
	)
	if err != nil {
		biErr := errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to execute Chroma query").
			WithCause(err).
			WithContext(map[string]interface{}{
				"top_k":      limit,
				"collection": cs.config.Collection,
			})
		cs.logger.LogChatBIError(biErr, "Vector search failed")
		return nil, biErr
	}

	hits := make([]VectorHit, 0)
	if queryResult != nil && len(queryResult.Ids) > 0 {
		for i := 0; i < len(queryResult.Ids[0]); i++ {
			distance := 0.0
			if len(queryResult.Distances) > 0 && len(queryResult.Distances[0]) > i {
				distance = float64(queryResult.Distances[0][i])
			}

			hit := VectorHit{
				DocID:      queryResult.Ids[0][i],
				Similarity: 1.0 - distance,
			}
			if len(queryResult.Documents) > 0 && len(queryResult.Documents[0]) > i {
				hit.Text = queryResult.Documents[0][i]
			}
			if len(queryResult.Metadatas) > 0 && len(queryResult.Metadatas[0]) > i {
				hit.Metadata = queryResult.Metadatas[0][i]
			}
			hits = append(hits, hit)
		}
	}

	cs.logger.Debug("Vector search completed", logger.Fields{
		"hits": len(hits),
	})
	return hits, nil
}

// Delete 删除向量文档
func (cs *ChromaSource) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	_, err := cs.collection.Delete(ctx, docIDs, nil, nil)
	if err != nil {
		return errors.NewChatBIError(errors.ErrorTypeVector, errors.ErrCodeVectorStorage, "Failed to delete vector documents").
			WithCause(err).
			WithContext(map[string]interface{}{
				"count": len(docIDs),
			})
	}
	return nil
}
