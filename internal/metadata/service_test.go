package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbi/internal/config"
	"chatbi/internal/models"
)

type fakeSuggestIndexer struct {
	docs []*models.DocumentRequest
	err  error
}

func (f *fakeSuggestIndexer) AddDocument(ctx context.Context, req *models.DocumentRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.docs = append(f.docs, req)
	return req.ID, nil
}

func newTestService(t *testing.T, indexer SuggestIndexer) *Service {
	t.Helper()
	service, err := NewService(&config.MetadataConfig{
		Type:        "sqlite",
		Path:        ":memory:",
		AutoMigrate: true,
	}, indexer)
	require.NoError(t, err)
	return service
}

func TestDimensionCRUD(t *testing.T) {
	ctx := context.Background()

	t.Run("创建后可查询", func(t *testing.T) {
		service := newTestService(t, nil)

		created, err := service.CreateDimension(ctx, &models.MetaDimensionRequest{
			Name:        "region",
			DisplayName: "区域",
			TableName:   "dim_region",
			ColumnName:  "region_name",
			DataType:    "string",
			Aliases:     []string{"地区", "大区"},
		})
		require.NoError(t, err)
		require.NotZero(t, created.ID)

		got, err := service.GetDimension(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "region", got.Name)
		assert.Equal(t, []string{"地区", "大区"}, got.AliasList())
	})

	t.Run("更新维度", func(t *testing.T) {
		service := newTestService(t, nil)
		created, err := service.CreateDimension(ctx, &models.MetaDimensionRequest{Name: "region"})
		require.NoError(t, err)

		updated, err := service.UpdateDimension(ctx, created.ID, &models.MetaDimensionRequest{
			Name:        "region",
			DisplayName: "销售区域",
		})
		require.NoError(t, err)
		assert.Equal(t, "销售区域", updated.DisplayName)
	})

	t.Run("删除后查询返回未找到", func(t *testing.T) {
		service := newTestService(t, nil)
		created, err := service.CreateDimension(ctx, &models.MetaDimensionRequest{Name: "region"})
		require.NoError(t, err)

		require.NoError(t, service.DeleteDimension(ctx, created.ID))
		_, err = service.GetDimension(ctx, created.ID)
		assert.Error(t, err)
	})

	t.Run("删除不存在的维度返回错误", func(t *testing.T) {
		service := newTestService(t, nil)
		assert.Error(t, service.DeleteDimension(ctx, 9999))
	})

	t.Run("重复名称创建失败", func(t *testing.T) {
		service := newTestService(t, nil)
		_, err := service.CreateDimension(ctx, &models.MetaDimensionRequest{Name: "region"})
		require.NoError(t, err)

		_, err = service.CreateDimension(ctx, &models.MetaDimensionRequest{Name: "region"})
		assert.Error(t, err)
	})
}

func TestMetricCRUD(t *testing.T) {
	ctx := context.Background()

	t.Run("创建和列表", func(t *testing.T) {
		service := newTestService(t, nil)

		_, err := service.CreateMetric(ctx, &models.MetaMetricRequest{
			Name:        "gmv",
			DisplayName: "成交总额",
			Expression:  "sum(order_amount)",
			Unit:        "元",
		})
		require.NoError(t, err)

		metrics, err := service.ListMetrics(ctx)
		require.NoError(t, err)
		require.Len(t, metrics, 1)
		assert.Equal(t, "成交总额", metrics[0].DisplayName)
	})
}

func TestIndexSync(t *testing.T) {
	ctx := context.Background()

	t.Run("创建维度同步到建议索引", func(t *testing.T) {
		indexer := &fakeSuggestIndexer{}
		service := newTestService(t, indexer)

		_, err := service.CreateDimension(ctx, &models.MetaDimensionRequest{
			Name:        "region",
			DisplayName: "区域",
			Aliases:     []string{"地区"},
		})
		require.NoError(t, err)

		require.Len(t, indexer.docs, 1)
		assert.Equal(t, "dimension:region", indexer.docs[0].ID)
		assert.Equal(t, "区域", indexer.docs[0].Text)
		assert.Equal(t, []string{"region", "地区"}, indexer.docs[0].Keywords)
		assert.Equal(t, "dimension", indexer.docs[0].Metadata["kind"])
	})

	t.Run("索引同步失败不影响元数据写入", func(t *testing.T) {
		indexer := &fakeSuggestIndexer{err: assert.AnError}
		service := newTestService(t, indexer)

		created, err := service.CreateMetric(ctx, &models.MetaMetricRequest{Name: "gmv"})
		require.NoError(t, err)

		_, err = service.GetMetric(ctx, created.ID)
		assert.NoError(t, err)
	})
}
