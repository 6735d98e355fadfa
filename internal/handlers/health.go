package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatbi/internal/logger"
	"chatbi/internal/models"
)

// Version 服务版本号
const Version = "1.0.0"

// ComponentChecker 组件健康检查
type ComponentChecker func(ctx context.Context) error

// HealthHandler 健康检查处理器
type HealthHandler struct {
	checkers map[string]ComponentChecker
	logger   *logger.Logger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(checkers map[string]ComponentChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		logger:   logger.NewLogger("health-handler"),
	}
}

// Health 健康检查
// @Summary 健康检查
// @Description 检查服务及其依赖组件的状态
// @Tags system
// @Produce json
// @Success 200 {object} models.HealthResponse "服务健康"
// @Failure 503 {object} models.HealthResponse "部分组件不可用"
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.checkers))
	healthy := true
	for name, check := range h.checkers {
		if err := check(ctx); err != nil {
			components[name] = "unavailable"
			healthy = false
			h.logger.WithError(err).Warn("Component health check failed", logger.Fields{
				"component": name,
			})
			continue
		}
		components[name] = "ok"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, models.HealthResponse{
		Status:     status,
		Version:    Version,
		Components: components,
		Timestamp:  time.Now(),
	})
}

// Root 服务信息
// @Summary 服务信息
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "chatbi-autocomplete",
		"version": Version,
		"status":  "running",
	})
}
