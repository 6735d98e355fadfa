package metadata

import (
	"context"
	"strconv"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
	"chatbi/internal/models"
)

// SuggestIndexer 建议索引写入能力，元数据变更后同步可补全的查询词条
type SuggestIndexer interface {
	AddDocument(ctx context.Context, req *models.DocumentRequest) (string, error)
}

// Service 业务元数据服务，维护维度和指标并同步到建议索引
type Service struct {
	db      *gorm.DB
	indexer SuggestIndexer
	logger  *logger.Logger
}

// NewService 创建元数据服务
func NewService(cfg *config.MetadataConfig, indexer SuggestIndexer) (*Service, error) {
	metadataLogger := logger.NewLogger("metadata")

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		biErr := errors.ErrDatabaseConnection("failed to open metadata database", err).
			WithContext(map[string]interface{}{
				"path": cfg.Path,
			})
		metadataLogger.LogChatBIError(biErr, "Metadata database connection failed")
		return nil, biErr
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&models.MetaDimension{}, &models.MetaMetric{}); err != nil {
			return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to migrate metadata schema").
				WithCause(err)
		}
	}

	metadataLogger.Info("Metadata service initialized", logger.Fields{
		"path":         cfg.Path,
		"auto_migrate": cfg.AutoMigrate,
	})

	return &Service{
		db:      db,
		indexer: indexer,
		logger:  metadataLogger,
	}, nil
}

// CreateDimension 创建维度并同步到建议索引
func (s *Service) CreateDimension(ctx context.Context, req *models.MetaDimensionRequest) (*models.MetaDimension, error) {
	dimension := &models.MetaDimension{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		TableName:   req.TableName,
		ColumnName:  req.ColumnName,
		DataType:    req.DataType,
		Aliases:     strings.Join(req.Aliases, ","),
	}

	if err := s.db.WithContext(ctx).Create(dimension).Error; err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to create dimension").
			WithCause(err).
			WithContext(map[string]interface{}{
				"name": req.Name,
			})
	}

	s.syncDimension(ctx, dimension)
	return dimension, nil
}

// UpdateDimension 更新维度并同步到建议索引
func (s *Service) UpdateDimension(ctx context.Context, id uint, req *models.MetaDimensionRequest) (*models.MetaDimension, error) {
	dimension, err := s.GetDimension(ctx, id)
	if err != nil {
		return nil, err
	}

	dimension.Name = req.Name
	dimension.DisplayName = req.DisplayName
	dimension.Description = req.Description
	dimension.TableName = req.TableName
	dimension.ColumnName = req.ColumnName
	dimension.DataType = req.DataType
	dimension.Aliases = strings.Join(req.Aliases, ",")

	if err := s.db.WithContext(ctx).Save(dimension).Error; err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to update dimension").
			WithCause(err)
	}

	s.syncDimension(ctx, dimension)
	return dimension, nil
}

// GetDimension 按ID查询维度
func (s *Service) GetDimension(ctx context.Context, id uint) (*models.MetaDimension, error) {
	var dimension models.MetaDimension
	err := s.db.WithContext(ctx).First(&dimension, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.ErrResourceNotFound("dimension", formatID(id))
	}
	if err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to query dimension").
			WithCause(err)
	}
	return &dimension, nil
}

// ListDimensions 列出全部维度
func (s *Service) ListDimensions(ctx context.Context) ([]models.MetaDimension, error) {
	var dimensions []models.MetaDimension
	if err := s.db.WithContext(ctx).Order("name").Find(&dimensions).Error; err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to list dimensions").
			WithCause(err)
	}
	return dimensions, nil
}

// DeleteDimension 删除维度
func (s *Service) DeleteDimension(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.MetaDimension{}, id)
	if result.Error != nil {
		return errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to delete dimension").
			WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrResourceNotFound("dimension", formatID(id))
	}
	return nil
}

// CreateMetric 创建指标并同步到建议索引
func (s *Service) CreateMetric(ctx context.Context, req *models.MetaMetricRequest) (*models.MetaMetric, error) {
	metric := &models.MetaMetric{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Expression:  req.Expression,
		Unit:        req.Unit,
		Aliases:     strings.Join(req.Aliases, ","),
	}

	if err := s.db.WithContext(ctx).Create(metric).Error; err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to create metric").
			WithCause(err).
			WithContext(map[string]interface{}{
				"name": req.Name,
			})
	}

	s.syncMetric(ctx, metric)
	return metric, nil
}

// UpdateMetric 更新指标并同步到建议索引
func (s *Service) UpdateMetric(ctx context.Context, id uint, req *models.MetaMetricRequest) (*models.MetaMetric, error) {
	metric, err := s.GetMetric(ctx, id)
	if err != nil {
		return nil, err
	}

	metric.Name = req.Name
	metric.DisplayName = req.DisplayName
	metric.Description = req.Description
	metric.Expression = req.Expression
	metric.Unit = req.Unit
	metric.Aliases = strings.Join(req.Aliases, ",")

	if err := s.db.WithContext(ctx).Save(metric).Error; err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to update metric").
			WithCause(err)
	}

	s.syncMetric(ctx, metric)
	return metric, nil
}

// GetMetric 按ID查询指标
func (s *Service) GetMetric(ctx context.Context, id uint) (*models.MetaMetric, error) {
	var metric models.MetaMetric
	err := s.db.WithContext(ctx).First(&metric, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.ErrResourceNotFound("metric", formatID(id))
	}
	if err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to query metric").
			WithCause(err)
	}
	return &metric, nil
}

// ListMetrics 列出全部指标
func (s *Service) ListMetrics(ctx context.Context) ([]models.MetaMetric, error) {
	var metrics []models.MetaMetric
	if err := s.db.WithContext(ctx).Order("name").Find(&metrics).Error; err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to list metrics").
			WithCause(err)
	}
	return metrics, nil
}

// DeleteMetric 删除指标
func (s *Service) DeleteMetric(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.MetaMetric{}, id)
	if result.Error != nil {
		return errors.NewChatBIError(errors.ErrorTypeDatabase, errors.ErrCodeDatabaseQuery, "Failed to delete metric").
			WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrResourceNotFound("metric", formatID(id))
	}
	return nil
}

// syncDimension 维度写入建议索引，失败不影响元数据操作本身
func (s *Service) syncDimension(ctx context.Context, dimension *models.MetaDimension) {
	if s.indexer == nil {
		return
	}

	text := dimension.DisplayName
	if text == "" {
		text = dimension.Name
	}
	keywords := append([]string{dimension.Name}, dimension.AliasList()...)

	_, err := s.indexer.AddDocument(ctx, &models.DocumentRequest{
		ID:       "dimension:" + dimension.Name,
		Text:     text,
		Keywords: keywords,
		Metadata: map[string]interface{}{
			"kind":        "dimension",
			"table_name":  dimension.TableName,
			"column_name": dimension.ColumnName,
		},
	})
	if err != nil {
		s.logger.WithError(err).Warn("Dimension index sync failed", logger.Fields{
			"name": dimension.Name,
		})
	}
}

// syncMetric 指标写入建议索引，失败不影响元数据操作本身
func (s *Service) syncMetric(ctx context.Context, metric *models.MetaMetric) {
	if s.indexer == nil {
		return
	}

	text := metric.DisplayName
	if text == "" {
		text = metric.Name
	}
	keywords := append([]string{metric.Name}, metric.AliasList()...)

	_, err := s.indexer.AddDocument(ctx, &models.DocumentRequest{
		ID:       "metric:" + metric.Name,
		Text:     text,
		Keywords: keywords,
		Metadata: map[string]interface{}{
			"kind":       "metric",
			"expression": metric.Expression,
			"unit":       metric.Unit,
		},
	})
	if err != nil {
		s.logger.WithError(err).Warn("Metric index sync failed", logger.Fields{
			"name": metric.Name,
		})
	}
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
