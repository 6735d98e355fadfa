package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbi/internal/models"
)

type fakeEngine struct {
	suggestions []models.Suggestion
	feedbackErr error
	docErr      error
	lastQuery   string
}

func (f *fakeEngine) GetSuggestions(ctx context.Context, req *models.AutocompleteRequest) *models.SuggestionResponse {
	f.lastQuery = req.Query
	return &models.SuggestionResponse{
		Query:       req.Query,
		Suggestions: f.suggestions,
		Total:       len(f.suggestions),
	}
}

func (f *fakeEngine) GetSimilarQueries(ctx context.Context, query, userID string, limit int) *models.SimilarQueriesResponse {
	return &models.SimilarQueriesResponse{
		Query:          query,
		SimilarQueries: f.suggestions,
		Total:          len(f.suggestions),
	}
}

func (f *fakeEngine) GetRelatedQueries(ctx context.Context, query, userID string, limit int) *models.RelatedQueriesResponse {
	return &models.RelatedQueriesResponse{
		Query:          query,
		RelatedQueries: f.suggestions,
		Total:          len(f.suggestions),
	}
}

func (f *fakeEngine) RecordFeedback(ctx context.Context, req *models.FeedbackRequest) error {
	return f.feedbackErr
}

func (f *fakeEngine) AddDocument(ctx context.Context, req *models.DocumentRequest) (string, error) {
	if f.docErr != nil {
		return "", f.docErr
	}
	return "doc-1", nil
}

func (f *fakeEngine) BulkAddDocuments(ctx context.Context, req *models.BulkDocumentRequest) (*models.BulkDocumentResponse, error) {
	if f.docErr != nil {
		return nil, f.docErr
	}
	return &models.BulkDocumentResponse{SuccessCount: len(req.Documents)}, nil
}

func performRequest(t *testing.T, handler gin.HandlerFunc, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Handle(method, path, handler)

	var reader *bytes.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestAutocomplete(t *testing.T) {
	t.Run("正常补全请求", func(t *testing.T) {
		engine := &fakeEngine{suggestions: []models.Suggestion{
			{Text: "查询本月销售额", Score: 0.9, Source: models.SourceHybrid},
		}}
		handler := NewAutocompleteHandler(engine)

		recorder := performRequest(t, handler.Autocomplete, http.MethodPost, "/api/v1/autocomplete",
			models.AutocompleteRequest{Query: "查询本月", UserID: "u1"})

		assert.Equal(t, http.StatusOK, recorder.Code)

		var resp models.SuggestionResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.Equal(t, "查询本月", resp.Query)
		require.Len(t, resp.Suggestions, 1)
		assert.Equal(t, 1, resp.Total)
		assert.Equal(t, "查询本月", engine.lastQuery)
	})

	t.Run("缺少query返回400", func(t *testing.T) {
		handler := NewAutocompleteHandler(&fakeEngine{})

		recorder := performRequest(t, handler.Autocomplete, http.MethodPost, "/api/v1/autocomplete",
			map[string]string{"user_id": "u1"})

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("非法JSON返回400", func(t *testing.T) {
		handler := NewAutocompleteHandler(&fakeEngine{})

		recorder := performRequest(t, handler.Autocomplete, http.MethodPost, "/api/v1/autocomplete",
			[]byte(`{"query": `))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("引擎不可用返回500", func(t *testing.T) {
		handler := NewAutocompleteHandler(nil)

		recorder := performRequest(t, handler.Autocomplete, http.MethodPost, "/api/v1/autocomplete",
			models.AutocompleteRequest{Query: "查询本月"})

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	})
}

func TestSimilarQueries(t *testing.T) {
	t.Run("返回相似查询", func(t *testing.T) {
		engine := &fakeEngine{suggestions: []models.Suggestion{
			{Text: "相似查询", Score: 0.8, Source: models.SourceVector},
		}}
		handler := NewAutocompleteHandler(engine)

		recorder := performRequest(t, handler.SimilarQueries, http.MethodPost, "/api/v1/similar-queries",
			models.AutocompleteRequest{Query: "查询销售额"})

		assert.Equal(t, http.StatusOK, recorder.Code)

		var resp models.SimilarQueriesResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		require.Len(t, resp.SimilarQueries, 1)
		assert.Equal(t, models.SourceVector, resp.SimilarQueries[0].Source)
	})
}

func TestRelatedQueries(t *testing.T) {
	t.Run("返回相关查询推荐", func(t *testing.T) {
		engine := &fakeEngine{suggestions: []models.Suggestion{
			{Text: "查询销售额环比", Score: 0.95, Source: models.SourceLLM},
		}}
		handler := NewAutocompleteHandler(engine)

		recorder := performRequest(t, handler.RelatedQueries, http.MethodPost, "/api/v1/related-queries",
			models.AutocompleteRequest{Query: "查询销售额"})

		assert.Equal(t, http.StatusOK, recorder.Code)

		var resp models.RelatedQueriesResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
	})
}

func TestFeedback(t *testing.T) {
	t.Run("反馈写入成功", func(t *testing.T) {
		handler := NewAutocompleteHandler(&fakeEngine{})

		recorder := performRequest(t, handler.Feedback, http.MethodPost, "/api/v1/feedback",
			models.FeedbackRequest{Query: "查询销售额", Selected: "查询本月销售额", UserID: "u1"})

		assert.Equal(t, http.StatusOK, recorder.Code)

		var resp models.FeedbackResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
	})

	t.Run("反馈写入失败返回success为false", func(t *testing.T) {
		handler := NewAutocompleteHandler(&fakeEngine{feedbackErr: assert.AnError})

		recorder := performRequest(t, handler.Feedback, http.MethodPost, "/api/v1/feedback",
			models.FeedbackRequest{Query: "查询销售额", Selected: "查询本月销售额"})

		assert.Equal(t, http.StatusOK, recorder.Code)

		var resp models.FeedbackResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
	})

	t.Run("缺少selected返回400", func(t *testing.T) {
		handler := NewAutocompleteHandler(&fakeEngine{})

		recorder := performRequest(t, handler.Feedback, http.MethodPost, "/api/v1/feedback",
			map[string]string{"query": "查询销售额"})

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestAddDocument(t *testing.T) {
	t.Run("写入文档返回ID", func(t *testing.T) {
		handler := NewAutocompleteHandler(&fakeEngine{})

		recorder := performRequest(t, handler.AddDocument, http.MethodPost, "/api/v1/documents",
			models.DocumentRequest{Text: "查询销售额"})

		assert.Equal(t, http.StatusOK, recorder.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.Equal(t, "doc-1", resp["id"])
	})

	t.Run("索引失败返回500", func(t *testing.T) {
		handler := NewAutocompleteHandler(&fakeEngine{docErr: assert.AnError})

		recorder := performRequest(t, handler.AddDocument, http.MethodPost, "/api/v1/documents",
			models.DocumentRequest{Text: "查询销售额"})

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	})
}

func TestBulkDocuments(t *testing.T) {
	t.Run("批量写入返回统计", func(t *testing.T) {
		handler := NewAutocompleteHandler(&fakeEngine{})

		recorder := performRequest(t, handler.BulkDocuments, http.MethodPost, "/api/v1/documents/bulk",
			models.BulkDocumentRequest{Documents: []models.DocumentRequest{
				{Text: "查询销售额"},
				{Text: "查询利润"},
			}})

		assert.Equal(t, http.StatusOK, recorder.Code)

		var resp models.BulkDocumentResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.SuccessCount)
	})
}
