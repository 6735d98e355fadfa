package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatbi/internal/errors"
	"chatbi/internal/logger"
	"chatbi/internal/metadata"
	"chatbi/internal/models"
)

// MetadataHandler 业务元数据API处理器
type MetadataHandler struct {
	service *metadata.Service
	logger  *logger.Logger
}

// NewMetadataHandler 创建元数据处理器
func NewMetadataHandler(service *metadata.Service) *MetadataHandler {
	return &MetadataHandler{
		service: service,
		logger:  logger.NewLogger("metadata-handler"),
	}
}

func (h *MetadataHandler) serviceAvailable(c *gin.Context) bool {
	if h.service == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Message: "Metadata service not available",
		})
		return false
	}
	return true
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid id parameter",
		})
		return 0, false
	}
	return uint(id), true
}

func (h *MetadataHandler) respondError(c *gin.Context, err error) {
	var biErr *errors.ChatBIError
	if e, ok := err.(*errors.ChatBIError); ok {
		biErr = e
	}

	code := http.StatusInternalServerError
	if biErr != nil && biErr.IsCode(errors.ErrCodeResourceNotFound) {
		code = http.StatusNotFound
	}

	message := "Metadata operation failed"
	if biErr != nil {
		message = biErr.Message
	}
	c.JSON(code, models.ErrorResponse{Success: false, Message: message})
}

// CreateDimension 创建维度
// @Summary 创建业务维度
// @Tags metadata
// @Accept json
// @Produce json
// @Param request body models.MetaDimensionRequest true "维度请求"
// @Success 200 {object} models.MetaDimension "创建成功"
// @Failure 400 {object} models.ErrorResponse "请求参数错误"
// @Router /api/v1/metadata/dimensions [post]
func (h *MetadataHandler) CreateDimension(c *gin.Context) {
	var req models.MetaDimensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}
	if !h.serviceAvailable(c) {
		return
	}

	dimension, err := h.service.CreateDimension(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dimension)
}

// ListDimensions 列出维度
// @Summary 列出业务维度
// @Tags metadata
// @Produce json
// @Success 200 {array} models.MetaDimension
// @Router /api/v1/metadata/dimensions [get]
func (h *MetadataHandler) ListDimensions(c *gin.Context) {
	if !h.serviceAvailable(c) {
		return
	}

	dimensions, err := h.service.ListDimensions(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dimensions)
}

// GetDimension 查询单个维度
// @Summary 查询业务维度
// @Tags metadata
// @Produce json
// @Param id path int true "维度ID"
// @Success 200 {object} models.MetaDimension
// @Failure 404 {object} models.ErrorResponse "维度不存在"
// @Router /api/v1/metadata/dimensions/{id} [get]
func (h *MetadataHandler) GetDimension(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if !h.serviceAvailable(c) {
		return
	}

	dimension, err := h.service.GetDimension(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dimension)
}

// UpdateDimension 更新维度
// @Summary 更新业务维度
// @Tags metadata
// @Accept json
// @Produce json
// @Param id path int true "维度ID"
// @Param request body models.MetaDimensionRequest true "维度请求"
// @Success 200 {object} models.MetaDimension
// @Router /api/v1/metadata/dimensions/{id} [put]
func (h *MetadataHandler) UpdateDimension(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req models.MetaDimensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}
	if !h.serviceAvailable(c) {
		return
	}

	dimension, err := h.service.UpdateDimension(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dimension)
}

// DeleteDimension 删除维度
// @Summary 删除业务维度
// @Tags metadata
// @Param id path int true "维度ID"
// @Success 200 {object} map[string]bool
// @Router /api/v1/metadata/dimensions/{id} [delete]
func (h *MetadataHandler) DeleteDimension(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if !h.serviceAvailable(c) {
		return
	}

	if err := h.service.DeleteDimension(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateMetric 创建指标
// @Summary 创建业务指标
// @Tags metadata
// @Accept json
// @Produce json
// @Param request body models.MetaMetricRequest true "指标请求"
// @Success 200 {object} models.MetaMetric
// @Router /api/v1/metadata/metrics [post]
func (h *MetadataHandler) CreateMetric(c *gin.Context) {
	var req models.MetaMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}
	if !h.serviceAvailable(c) {
		return
	}

	metric, err := h.service.CreateMetric(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metric)
}

// ListMetrics 列出指标
// @Summary 列出业务指标
// @Tags metadata
// @Produce json
// @Success 200 {array} models.MetaMetric
// @Router /api/v1/metadata/metrics [get]
func (h *MetadataHandler) ListMetrics(c *gin.Context) {
	if !h.serviceAvailable(c) {
		return
	}

	metrics, err := h.service.ListMetrics(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// GetMetric 查询单个指标
// @Summary 查询业务指标
// @Tags metadata
// @Produce json
// @Param id path int true "指标ID"
// @Success 200 {object} models.MetaMetric
// @Failure 404 {object} models.ErrorResponse "指标不存在"
// @Router /api/v1/metadata/metrics/{id} [get]
func (h *MetadataHandler) GetMetric(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if !h.serviceAvailable(c) {
		return
	}

	metric, err := h.service.GetMetric(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metric)
}

// UpdateMetric 更新指标
// @Summary 更新业务指标
// @Tags metadata
// @Accept json
// @Produce json
// @Param id path int true "指标ID"
// @Param request body models.MetaMetricRequest true "指标请求"
// @Success 200 {object} models.MetaMetric
// @Router /api/v1/metadata/metrics/{id} [put]
func (h *MetadataHandler) UpdateMetric(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req models.MetaMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request parameters: " + err.Error(),
		})
		return
	}
	if !h.serviceAvailable(c) {
		return
	}

	metric, err := h.service.UpdateMetric(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metric)
}

// DeleteMetric 删除指标
// @Summary 删除业务指标
// @Tags metadata
// @Param id path int true "指标ID"
// @Success 200 {object} map[string]bool
// @Router /api/v1/metadata/metrics/{id} [delete]
func (h *MetadataHandler) DeleteMetric(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if !h.serviceAvailable(c) {
		return
	}

	if err := h.service.DeleteMetric(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
