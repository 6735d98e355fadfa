package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbi/internal/config"
	"chatbi/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	cfg := &config.OpenSearchConfig{
		Host:      parsed.Hostname(),
		Port:      port,
		IndexName: "test_autocomplete",
		Timeout:   5 * time.Second,
	}
	return NewClient(cfg, 3), server
}

func TestKeywordSearch(t *testing.T) {
	t.Run("解析检索命中", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/test_autocomplete/_search", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.EqualValues(t, 5, body["size"])

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"hits": {
					"hits": [
						{"_id": "doc-1", "_score": 3.2, "_source": {"text": "查询本月销售额", "keywords": ["销售额"]}},
						{"_id": "doc-2", "_score": 1.8, "_source": {"text": "查询本月利润"}}
					]
				}
			}`))
		}))

		hits, err := client.KeywordSearch(context.Background(), "查询本月", 5)
		require.NoError(t, err)
		require.Len(t, hits, 2)

		assert.Equal(t, "doc-1", hits[0].DocID)
		assert.Equal(t, "查询本月销售额", hits[0].Text)
		assert.InDelta(t, 3.2, hits[0].Score, 1e-9)
		assert.Equal(t, []string{"销售额"}, hits[0].Keywords)
		assert.Equal(t, "doc-2", hits[1].DocID)
	})

	t.Run("空查询直接返回空", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not reach the server")
		}))

		hits, err := client.KeywordSearch(context.Background(), "", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("服务端错误返回搜索错误", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := client.KeywordSearch(context.Background(), "销售额", 5)
		assert.Error(t, err)
	})
}

func TestEnsureIndex(t *testing.T) {
	t.Run("索引已存在时不再创建", func(t *testing.T) {
		createCalled := false
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodHead:
				w.WriteHeader(http.StatusOK)
			case http.MethodPut:
				createCalled = true
			}
		}))

		require.NoError(t, client.EnsureIndex(context.Background()))
		assert.False(t, createCalled)
	})

	t.Run("索引不存在时按映射创建", func(t *testing.T) {
		var mapping map[string]interface{}
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodHead:
				w.WriteHeader(http.StatusNotFound)
			case http.MethodPut:
				require.NoError(t, json.NewDecoder(r.Body).Decode(&mapping))
				w.Write([]byte(`{"acknowledged": true}`))
			}
		}))

		require.NoError(t, client.EnsureIndex(context.Background()))
		require.NotNil(t, mapping)

		mappings := mapping["mappings"].(map[string]interface{})
		properties := mappings["properties"].(map[string]interface{})
		assert.Contains(t, properties, "text")
		assert.Contains(t, properties, "keywords")
		assert.Contains(t, properties, "frequency")

		embedding := properties["embedding"].(map[string]interface{})
		assert.Equal(t, "knn_vector", embedding["type"])
		assert.EqualValues(t, 3, embedding["dimension"])
		settings := mapping["settings"].(map[string]interface{})
		assert.Equal(t, true, settings["index.knn"])
	})

	t.Run("未配置向量维度时映射不含向量字段", func(t *testing.T) {
		var mapping map[string]interface{}
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodHead:
				w.WriteHeader(http.StatusNotFound)
			case http.MethodPut:
				require.NoError(t, json.NewDecoder(r.Body).Decode(&mapping))
				w.Write([]byte(`{"acknowledged": true}`))
			}
		}))
		client.dimension = 0

		require.NoError(t, client.EnsureIndex(context.Background()))
		properties := mapping["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
		assert.NotContains(t, properties, "embedding")
	})
}

func TestVectorSearch(t *testing.T) {
	t.Run("knn命中解析为相似度得分", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/test_autocomplete/_search", r.URL.Path)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			knn := body["query"].(map[string]interface{})["knn"].(map[string]interface{})
			field := knn["embedding"].(map[string]interface{})
			assert.EqualValues(t, 5, field["k"])
			assert.Len(t, field["vector"].([]interface{}), 3)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"hits": {
					"hits": [
						{"_id": "doc-1", "_score": 0.92, "_source": {"text": "查询本月销售额"}}
					]
				}
			}`))
		}))

		hits, err := client.VectorSearch(context.Background(), []float32{0.1, 0.2, 0.3}, 5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "doc-1", hits[0].DocID)
		assert.InDelta(t, 0.92, hits[0].Score, 1e-9)
	})

	t.Run("空向量直接返回空", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not reach the server")
		}))

		hits, err := client.VectorSearch(context.Background(), nil, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestUpdateEmbedding(t *testing.T) {
	t.Run("补写向量字段", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/test_autocomplete/_update/doc-1", r.URL.Path)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			doc := body["doc"].(map[string]interface{})
			assert.Len(t, doc["embedding"].([]interface{}), 3)

			w.Write([]byte(`{"result": "updated"}`))
		}))

		err := client.UpdateEmbedding(context.Background(), "doc-1", []float32{0.1, 0.2, 0.3})
		require.NoError(t, err)
	})

	t.Run("文档不存在时返回索引错误", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		err := client.UpdateEmbedding(context.Background(), "missing", []float32{0.1})
		assert.Error(t, err)
	})
}

func TestBulkIndexDocuments(t *testing.T) {
	t.Run("单次_bulk请求并按逐条结果统计", func(t *testing.T) {
		var bulkCalls int
		var rawBody []byte
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/_bulk", r.URL.Path)
			bulkCalls++
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			rawBody = body

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"errors": true,
				"items": [
					{"index": {"_id": "doc-1", "status": 201}},
					{"index": {"_id": "bad", "status": 400, "error": {"type": "mapper_parsing_exception"}}},
					{"index": {"_id": "doc-2", "status": 201}}
				]
			}`))
		}))

		now := time.Now()
		docs := []*models.Document{
			{ID: "doc-1", Text: "查询销售额", CreatedAt: now, UpdatedAt: now},
			{ID: "bad", Text: "", CreatedAt: now, UpdatedAt: now},
			{ID: "doc-2", Text: "查询利润", CreatedAt: now, UpdatedAt: now},
		}

		success, failed, err := client.BulkIndexDocuments(context.Background(), docs)
		require.NoError(t, err)
		assert.Equal(t, 2, success)
		assert.Equal(t, 1, failed)
		assert.Equal(t, 1, bulkCalls)

		// 每个文档一行动作一行文档体
		lines := strings.Split(strings.TrimRight(string(rawBody), "\n"), "\n")
		require.Len(t, lines, 6)
		assert.Contains(t, lines[0], `"_id":"doc-1"`)
		assert.Contains(t, lines[0], `"_index":"test_autocomplete"`)
		assert.Contains(t, lines[1], "查询销售额")
	})

	t.Run("空列表不发请求", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not reach the server")
		}))

		success, failed, err := client.BulkIndexDocuments(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, success)
		assert.Zero(t, failed)
	})
}
