package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatbi/internal/config"
	"chatbi/internal/handlers"
	"chatbi/internal/logger"
)

// requestID 为每个请求分配追踪ID，调用方传入的X-Request-ID优先
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Server HTTP服务
type Server struct {
	httpServer *http.Server
	config     *config.Config
	logger     *logger.Logger
}

// Handlers 路由挂载的处理器集合，metadata可为nil表示未启用元数据接口
type Handlers struct {
	Autocomplete *handlers.AutocompleteHandler
	Metadata     *handlers.MetadataHandler
	Health       *handlers.HealthHandler
}

// New 创建HTTP服务并注册路由
func New(cfg *config.Config, h Handlers) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(requestID())

	router.GET("/", h.Health.Root)
	router.GET("/health", h.Health.Health)

	api := router.Group("/api/v1")
	{
		api.POST("/autocomplete", h.Autocomplete.Autocomplete)
		api.POST("/similar-queries", h.Autocomplete.SimilarQueries)
		api.POST("/related-queries", h.Autocomplete.RelatedQueries)
		api.POST("/feedback", h.Autocomplete.Feedback)
		api.POST("/documents", h.Autocomplete.AddDocument)
		api.POST("/documents/bulk", h.Autocomplete.BulkDocuments)

		if h.Metadata != nil {
			meta := api.Group("/metadata")
			{
				meta.POST("/dimensions", h.Metadata.CreateDimension)
				meta.GET("/dimensions", h.Metadata.ListDimensions)
				meta.GET("/dimensions/:id", h.Metadata.GetDimension)
				meta.PUT("/dimensions/:id", h.Metadata.UpdateDimension)
				meta.DELETE("/dimensions/:id", h.Metadata.DeleteDimension)
				meta.POST("/metrics", h.Metadata.CreateMetric)
				meta.GET("/metrics", h.Metadata.ListMetrics)
				meta.GET("/metrics/:id", h.Metadata.GetMetric)
				meta.PUT("/metrics/:id", h.Metadata.UpdateMetric)
				meta.DELETE("/metrics/:id", h.Metadata.DeleteMetric)
			}
		}
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		config: cfg,
		logger: logger.NewLogger("server"),
	}
}

// Start 启动HTTP服务，阻塞直到服务关闭
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", logger.Fields{
		"address": s.httpServer.Addr,
		"mode":    s.config.Server.Mode,
	})

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭HTTP服务
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
