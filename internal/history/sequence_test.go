package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbi/internal/models"
)

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("记录全局和用户级转移", func(t *testing.T) {
		store := newFakeStore()
		miner := NewSequenceMiner(store)

		require.NoError(t, miner.Record(ctx, "u1", "查询销售额", "查询利润"))

		assert.InDelta(t, 1.0, store.zsets["sequence:查询销售额"]["查询利润"], 1e-9)
		assert.InDelta(t, 1.0, store.zsets["user:u1:sequence:查询销售额"]["查询利润"], 1e-9)
	})

	t.Run("重复转移计数加二", func(t *testing.T) {
		store := newFakeStore()
		miner := NewSequenceMiner(store)

		require.NoError(t, miner.Record(ctx, "u1", "查询销售额", "查询利润"))
		require.NoError(t, miner.Record(ctx, "u1", "查询销售额", "查询利润"))

		assert.InDelta(t, 2.0, store.zsets["sequence:查询销售额"]["查询利润"], 1e-9)
		assert.InDelta(t, 2.0, store.zsets["user:u1:sequence:查询销售额"]["查询利润"], 1e-9)
	})

	t.Run("前后查询相同时不记录", func(t *testing.T) {
		store := newFakeStore()
		miner := NewSequenceMiner(store)

		require.NoError(t, miner.Record(ctx, "u1", "查询销售额", "查询销售额"))
		assert.Empty(t, store.zsets)
	})

	t.Run("缺少前查询时不记录", func(t *testing.T) {
		store := newFakeStore()
		miner := NewSequenceMiner(store)

		require.NoError(t, miner.Record(ctx, "u1", "", "查询利润"))
		assert.Empty(t, store.zsets)
	})
}

func TestNext(t *testing.T) {
	ctx := context.Background()

	t.Run("用户级转移优先于全局", func(t *testing.T) {
		store := newFakeStore()
		store.zsets["sequence:查询销售额"] = map[string]float64{"全局后继": 5}
		store.zsets["user:u1:sequence:查询销售额"] = map[string]float64{"用户后继": 1}
		miner := NewSequenceMiner(store)

		suggestions, err := miner.Next(ctx, "u1", "查询销售额", 5)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)
		assert.Equal(t, "用户后继", suggestions[0].Text)
		assert.Equal(t, "全局后继", suggestions[1].Text)
	})

	t.Run("用户级与全局重复时去重", func(t *testing.T) {
		store := newFakeStore()
		store.zsets["sequence:查询销售额"] = map[string]float64{"查询利润": 5}
		store.zsets["user:u1:sequence:查询销售额"] = map[string]float64{"查询利润": 2}
		miner := NewSequenceMiner(store)

		suggestions, err := miner.Next(ctx, "u1", "查询销售额", 5)
		require.NoError(t, err)
		require.Len(t, suggestions, 1)
		assert.Equal(t, "查询利润", suggestions[0].Text)
	})

	t.Run("展示分随转移次数增加并封顶", func(t *testing.T) {
		store := newFakeStore()
		store.zsets["sequence:查询销售额"] = map[string]float64{"查询利润": 1, "查询成本": 100}
		miner := NewSequenceMiner(store)

		suggestions, err := miner.Next(ctx, "", "查询销售额", 5)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)

		assert.Equal(t, "查询成本", suggestions[0].Text)
		assert.InDelta(t, 0.95, suggestions[0].Score, 1e-9)
		assert.InDelta(t, 0.90, suggestions[1].Score, 1e-9)
		assert.Equal(t, models.SourceSequenceNext, suggestions[0].Source)
	})
}

func TestPrevious(t *testing.T) {
	ctx := context.Background()

	t.Run("扫描序列键找到前驱查询", func(t *testing.T) {
		store := newFakeStore()
		store.zsets["sequence:查询销售额"] = map[string]float64{"查询利润": 3}
		store.zsets["sequence:查询成本"] = map[string]float64{"其他查询": 1}
		miner := NewSequenceMiner(store)

		suggestions, err := miner.Previous(ctx, "", "查询利润", 5)
		require.NoError(t, err)
		require.Len(t, suggestions, 1)

		assert.Equal(t, "查询销售额", suggestions[0].Text)
		assert.Equal(t, models.SourceSequencePrev, suggestions[0].Source)
		assert.InDelta(t, 0.65+3.0/20.0, suggestions[0].Score, 1e-9)
	})

	t.Run("前驱按转移次数降序截断", func(t *testing.T) {
		store := newFakeStore()
		store.zsets["sequence:a查询"] = map[string]float64{"查询利润": 1}
		store.zsets["sequence:b查询"] = map[string]float64{"查询利润": 1}
		store.zsets["sequence:z查询"] = map[string]float64{"查询利润": 50}
		miner := NewSequenceMiner(store)

		suggestions, err := miner.Previous(ctx, "", "查询利润", 2)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)

		// 扫描顺序靠后但次数最高的前驱必须排在首位
		assert.Equal(t, "z查询", suggestions[0].Text)
		assert.InDelta(t, 0.75, suggestions[0].Score, 1e-9)
		assert.Equal(t, "a查询", suggestions[1].Text)
		assert.InDelta(t, 0.65+1.0/20.0, suggestions[1].Score, 1e-9)
	})

	t.Run("同计数时逆向得分低于顺向", func(t *testing.T) {
		store := newFakeStore()
		store.zsets["sequence:查询销售额"] = map[string]float64{"查询利润": 4}
		miner := NewSequenceMiner(store)

		next, err := miner.Next(ctx, "", "查询销售额", 5)
		require.NoError(t, err)
		prev, err := miner.Previous(ctx, "", "查询利润", 5)
		require.NoError(t, err)

		require.Len(t, next, 1)
		require.Len(t, prev, 1)
		assert.Greater(t, next[0].Score, prev[0].Score)
	})

	t.Run("逆向得分封顶", func(t *testing.T) {
		store := newFakeStore()
		store.zsets["sequence:查询销售额"] = map[string]float64{"查询利润": 100}
		miner := NewSequenceMiner(store)

		prev, err := miner.Previous(ctx, "", "查询利润", 5)
		require.NoError(t, err)
		require.Len(t, prev, 1)
		assert.InDelta(t, 0.75, prev[0].Score, 1e-9)
	})
}
