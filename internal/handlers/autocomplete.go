package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatbi/internal/logger"
	"chatbi/internal/models"
)

// AutocompleteHandler 自动补全API处理器
type AutocompleteHandler struct {
	engine SuggestionEngine
	logger *logger.Logger
}

// SuggestionEngine 推荐引擎接口
type SuggestionEngine interface {
	GetSuggestions(ctx context.Context, req *models.AutocompleteRequest) *models.SuggestionResponse
	GetSimilarQueries(ctx context.Context, query, userID string, limit int) *models.SimilarQueriesResponse
	GetRelatedQueries(ctx context.Context, query, userID string, limit int) *models.RelatedQueriesResponse
	RecordFeedback(ctx context.Context, req *models.FeedbackRequest) error
	AddDocument(ctx context.Context, req *models.DocumentRequest) (string, error)
	BulkAddDocuments(ctx context.Context, req *models.BulkDocumentRequest) (*models.BulkDocumentResponse, error)
}

// NewAutocompleteHandler 创建自动补全处理器
func NewAutocompleteHandler(engine SuggestionEngine) *AutocompleteHandler {
	return &AutocompleteHandler{
		engine: engine,
		logger: logger.NewLogger("autocomplete-handler"),
	}
}

// Autocomplete 查询自动补全
// @Summary 查询自动补全
// @Description 混合关键词和向量召回的查询建议
// @Tags autocomplete
// @Accept json
// @Produce json
// @Param request body models.AutocompleteRequest true "补全请求"
// @Success 200 {object} models.SuggestionResponse "补全成功"
// @Failure 400 {object} models.ErrorResponse "请求参数错误"
// @Failure 500 {object} models.ErrorResponse "服务器内部错误"
// @Router /api/v1/autocomplete [post]
func (h *AutocompleteHandler) Autocomplete(c *gin.Context) {
	var req models.AutocompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid autocomplete request", logger.Fields{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}

	if h.engine == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "Suggestion engine not available",
		})
		return
	}

	resp := h.engine.GetSuggestions(c.Request.Context(), &req)
	c.JSON(http.StatusOK, resp)
}

// SimilarQueries 相似查询
// @Summary 相似查询
// @Description 基于向量相似度的相似查询推荐
// @Tags autocomplete
// @Accept json
// @Produce json
// @Param request body models.AutocompleteRequest true "查询请求"
// @Success 200 {object} models.SimilarQueriesResponse "查询成功"
// @Failure 400 {object} models.ErrorResponse "请求参数错误"
// @Router /api/v1/similar-queries [post]
func (h *AutocompleteHandler) SimilarQueries(c *gin.Context) {
	var req models.AutocompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}

	if h.engine == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "Suggestion engine not available",
		})
		return
	}

	resp := h.engine.GetSimilarQueries(c.Request.Context(), req.Query, req.UserID, req.Limit)
	c.JSON(http.StatusOK, resp)
}

// RelatedQueries 相关查询推荐
// @Summary 相关查询推荐
// @Description 融合LLM生成、查询序列和用户历史的相关查询推荐
// @Tags autocomplete
// @Accept json
// @Produce json
// @Param request body models.AutocompleteRequest true "查询请求"
// @Success 200 {object} models.RelatedQueriesResponse "推荐成功"
// @Failure 400 {object} models.ErrorResponse "请求参数错误"
// @Router /api/v1/related-queries [post]
func (h *AutocompleteHandler) RelatedQueries(c *gin.Context) {
	var req models.AutocompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}

	if h.engine == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "Suggestion engine not available",
		})
		return
	}

	resp := h.engine.GetRelatedQueries(c.Request.Context(), req.Query, req.UserID, req.Limit)
	c.JSON(http.StatusOK, resp)
}

// Feedback 用户选择反馈
// @Summary 用户选择反馈
// @Description 记录用户实际选择的建议，用于个性化和序列挖掘
// @Tags autocomplete
// @Accept json
// @Produce json
// @Param request body models.FeedbackRequest true "反馈请求"
// @Success 200 {object} models.FeedbackResponse "反馈处理结果"
// @Failure 400 {object} models.ErrorResponse "请求参数错误"
// @Router /api/v1/feedback [post]
func (h *AutocompleteHandler) Feedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}

	if h.engine == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "Suggestion engine not available",
		})
		return
	}

	// 反馈写入失败返回success=false而不是HTTP错误
	if err := h.engine.RecordFeedback(c.Request.Context(), &req); err != nil {
		h.logger.WithError(err).Warn("Feedback recording failed", logger.Fields{
			"query":   req.Query,
			"user_id": req.UserID,
		})
		c.JSON(http.StatusOK, models.FeedbackResponse{
			Success: false,
			Message: "Failed to record feedback",
		})
		return
	}

	c.JSON(http.StatusOK, models.FeedbackResponse{Success: true})
}

// AddDocument 写入单个建议文档
// @Summary 写入建议文档
// @Description 同时写入关键词索引和向量库
// @Tags documents
// @Accept json
// @Produce json
// @Param request body models.DocumentRequest true "文档请求"
// @Success 200 {object} map[string]string "写入成功"
// @Failure 400 {object} models.ErrorResponse "请求参数错误"
// @Failure 500 {object} models.ErrorResponse "写入失败"
// @Router /api/v1/documents [post]
func (h *AutocompleteHandler) AddDocument(c *gin.Context) {
	var req models.DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}

	if h.engine == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "Suggestion engine not available",
		})
		return
	}

	docID, err := h.engine.AddDocument(c.Request.Context(), &req)
	if err != nil {
		h.logger.WithError(err).Error("Document indexing failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "Failed to index document",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": docID})
}

// BulkDocuments 批量写入建议文档
// @Summary 批量写入建议文档
// @Tags documents
// @Accept json
// @Produce json
// @Param request body models.BulkDocumentRequest true "批量文档请求"
// @Success 200 {object} models.BulkDocumentResponse "批量写入结果"
// @Failure 400 {object} models.ErrorResponse "请求参数错误"
// @Router /api/v1/documents/bulk [post]
func (h *AutocompleteHandler) BulkDocuments(c *gin.Context) {
	var req models.BulkDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}

	if h.engine == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "Suggestion engine not available",
		})
		return
	}

	resp, err := h.engine.BulkAddDocuments(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}
