package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
	"chatbi/internal/models"
)

// SearchHit 关键词检索命中
type SearchHit struct {
	DocID    string
	Text     string
	Score    float64
	Keywords []string
	Metadata map[string]interface{}
}

// Client 搜索索引客户端，负责建议文档的写入和关键词检索
// dimension大于0时索引附带knn向量字段，可作为向量路召回的后备实现
type Client struct {
	http      *resty.Client
	indexName string
	dimension int
	logger    *logger.Logger
}

// NewClient 创建搜索索引客户端，dimension为0时索引不含向量字段
func NewClient(cfg *config.OpenSearchConfig, dimension int) *Client {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	httpClient := resty.New().
		SetBaseURL(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryTimes).
		SetRetryWaitTime(cfg.RetryDelay).
		SetHeader("Content-Type", "application/json")

	if cfg.Username != "" {
		httpClient.SetBasicAuth(cfg.Username, cfg.Password)
	}

	return &Client{
		http:      httpClient,
		indexName: cfg.IndexName,
		dimension: dimension,
		logger:    logger.NewLogger("search"),
	}
}

// Ping 检查索引服务是否可达
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return errors.ErrSearchQuery("cluster unreachable", err)
	}
	if resp.IsError() {
		return errors.ErrSearchQuery(fmt.Sprintf("cluster returned status %d", resp.StatusCode()), nil)
	}
	return nil
}

// EnsureIndex 确保建议索引存在，不存在时按既定映射创建
func (c *Client) EnsureIndex(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Head("/" + url.PathEscape(c.indexName))
	if err != nil {
		return errors.ErrSearchQuery("failed to check index existence", err)
	}
	if resp.StatusCode() == 200 {
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"index.knn":          c.dimension > 0,
			"analysis": map[string]interface{}{
				"analyzer": map[string]interface{}{
					"text_analyzer": map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"text": map[string]interface{}{
					"type":     "text",
					"analyzer": "text_analyzer",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{
							"type": "keyword",
						},
						"completion": map[string]interface{}{
							"type": "completion",
						},
					},
				},
				"keywords": map[string]interface{}{
					"type": "keyword",
				},
				"metadata": map[string]interface{}{
					"type":    "object",
					"enabled": true,
				},
				"frequency": map[string]interface{}{
					"type": "long",
				},
				"created_at": map[string]interface{}{
					"type": "date",
				},
				"updated_at": map[string]interface{}{
					"type": "date",
				},
			},
		},
	}

	if c.dimension > 0 {
		properties := mapping["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
		properties["embedding"] = map[string]interface{}{
			"type":      "knn_vector",
			"dimension": c.dimension,
		}
	}

	createResp, err := c.http.R().
		SetContext(ctx).
		SetBody(mapping).
		Put("/" + url.PathEscape(c.indexName))
	if err != nil {
		return errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to create index").
			WithCause(err)
	}
	if createResp.IsError() {
		return errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to create index").
			WithDetails(createResp.String())
	}

	c.logger.Info("Search index created", logger.Fields{
		"index": c.indexName,
	})
	return nil
}

// IndexDocument 写入单个建议文档
func (c *Client) IndexDocument(ctx context.Context, doc *models.Document) error {
	body := map[string]interface{}{
		"text":       doc.Text,
		"keywords":   doc.Keywords,
		"metadata":   doc.Metadata,
		"frequency":  doc.Frequency,
		"created_at": doc.CreatedAt.Format(time.RFC3339),
		"updated_at": doc.UpdatedAt.Format(time.RFC3339),
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Put(fmt.Sprintf("/%s/_doc/%s", url.PathEscape(c.indexName), url.PathEscape(doc.ID)))
	if err != nil {
		return errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to index document").
			WithCause(err).
			WithContext(map[string]interface{}{"doc_id": doc.ID})
	}
	if resp.IsError() {
		return errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to index document").
			WithDetails(resp.String()).
			WithContext(map[string]interface{}{"doc_id": doc.ID})
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string          `json:"_id"`
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// BulkIndexDocuments 通过_bulk一次写入全部建议文档，按逐条结果统计成功和失败
func (c *Client) BulkIndexDocuments(ctx context.Context, docs []*models.Document) (int, int, error) {
	if len(docs) == 0 {
		return 0, 0, nil
	}

	var body bytes.Buffer
	for _, doc := range docs {
		action, err := json.Marshal(map[string]interface{}{
			"index": map[string]interface{}{
				"_index": c.indexName,
				"_id":    doc.ID,
			},
		})
		if err != nil {
			return 0, 0, errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to build bulk request").
				WithCause(err)
		}
		source, err := json.Marshal(map[string]interface{}{
			"text":       doc.Text,
			"keywords":   doc.Keywords,
			"metadata":   doc.Metadata,
			"frequency":  doc.Frequency,
			"created_at": doc.CreatedAt.Format(time.RFC3339),
			"updated_at": doc.UpdatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return 0, 0, errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to build bulk request").
				WithCause(err)
		}
		body.Write(action)
		body.WriteByte('\n')
		body.Write(source)
		body.WriteByte('\n')
	}

	result := &bulkResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-ndjson").
		SetBody(body.String()).
		SetResult(result).
		Post("/_bulk")
	if err != nil {
		return 0, 0, errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Bulk index request failed").
			WithCause(err)
	}
	if resp.IsError() {
		return 0, 0, errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Bulk index request failed").
			WithDetails(resp.String())
	}

	successCount := 0
	errorCount := 0
	for _, item := range result.Items {
		if item.Index.Status >= 200 && item.Index.Status < 300 {
			successCount++
			continue
		}
		errorCount++
		c.logger.Warn("Bulk index item failed", logger.Fields{
			"doc_id": item.Index.ID,
			"status": item.Index.Status,
		})
	}

	c.logger.Info("Bulk index completed", logger.Fields{
		"success": successCount,
		"errors":  errorCount,
	})
	return successCount, errorCount, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Text     string                 `json:"text"`
				Keywords []string               `json:"keywords"`
				Metadata map[string]interface{} `json:"metadata"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// KeywordSearch 关键词检索，混合前缀短语匹配、模糊匹配和关键词精确匹配
func (c *Client) KeywordSearch(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{
						"match_phrase_prefix": map[string]interface{}{
							"text": map[string]interface{}{
								"query": query,
								"boost": 3.0,
							},
						},
					},
					{
						"match": map[string]interface{}{
							"text": map[string]interface{}{
								"query":     query,
								"fuzziness": "AUTO",
								"boost":     2.0,
							},
						},
					},
					{
						"term": map[string]interface{}{
							"keywords": map[string]interface{}{
								"value": query,
								"boost": 4.0,
							},
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
	}

	result := &searchResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post(fmt.Sprintf("/%s/_search", url.PathEscape(c.indexName)))
	if err != nil {
		return nil, errors.ErrSearchQuery("keyword search request failed", err).
			WithContext(map[string]interface{}{"query": query})
	}
	if resp.IsError() {
		return nil, errors.ErrSearchQuery(fmt.Sprintf("keyword search returned status %d", resp.StatusCode()), nil).
			WithContext(map[string]interface{}{"query": query})
	}

	hits := make([]SearchHit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		hits = append(hits, SearchHit{
			DocID:    h.ID,
			Text:     h.Source.Text,
			Score:    h.Score,
			Keywords: h.Source.Keywords,
			Metadata: h.Source.Metadata,
		})
	}

	c.logger.Debug("Keyword search completed", logger.Fields{
		"query": query,
		"hits":  len(hits),
	})
	return hits, nil
}

// VectorSearch knn近邻检索，未部署独立向量库时承担向量路召回
func (c *Client) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]SearchHit, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	body := map[string]interface{}{
		"size": limit,
		"_source": map[string]interface{}{
			"excludes": []string{"embedding"},
		},
		"query": map[string]interface{}{
			"knn": map[string]interface{}{
				"embedding": map[string]interface{}{
					"vector": embedding,
					"k":      limit,
				},
			},
		},
	}

	result := &searchResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post(fmt.Sprintf("/%s/_search", url.PathEscape(c.indexName)))
	if err != nil {
		return nil, errors.ErrSearchQuery("vector search request failed", err)
	}
	if resp.IsError() {
		return nil, errors.ErrSearchQuery(fmt.Sprintf("vector search returned status %d", resp.StatusCode()), nil)
	}

	hits := make([]SearchHit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		hits = append(hits, SearchHit{
			DocID:    h.ID,
			Text:     h.Source.Text,
			Score:    h.Score,
			Keywords: h.Source.Keywords,
			Metadata: h.Source.Metadata,
		})
	}

	c.logger.Debug("Vector search completed", logger.Fields{
		"hits": len(hits),
	})
	return hits, nil
}

// UpdateEmbedding 补写文档的向量字段
func (c *Client) UpdateEmbedding(ctx context.Context, docID string, embedding []float32) error {
	body := map[string]interface{}{
		"doc": map[string]interface{}{
			"embedding": embedding,
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/%s/_update/%s", url.PathEscape(c.indexName), url.PathEscape(docID)))
	if err != nil {
		return errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to update document embedding").
			WithCause(err).
			WithContext(map[string]interface{}{"doc_id": docID})
	}
	if resp.IsError() {
		return errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to update document embedding").
			WithDetails(resp.String()).
			WithContext(map[string]interface{}{"doc_id": docID})
	}
	return nil
}

// DeleteDocument 删除建议文档
func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/%s/_doc/%s", url.PathEscape(c.indexName), url.PathEscape(docID)))
	if err != nil {
		return errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to delete document").
			WithCause(err).
			WithContext(map[string]interface{}{"doc_id": docID})
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return errors.NewChatBIError(errors.ErrorTypeSearch, errors.ErrCodeSearchIndex, "Failed to delete document").
			WithDetails(resp.String())
	}
	return nil
}
