package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateToSuggestion(t *testing.T) {
	t.Run("保留文本得分和来源", func(t *testing.T) {
		candidate := &Candidate{
			DocID:        "doc-1",
			Text:         "查询本月销售额",
			KeywordScore: 3.2,
			VectorScore:  0.9,
			Score:        2.51,
			Source:       SourceHybrid,
			Metadata:     map[string]interface{}{"category": "sales"},
		}

		suggestion := candidate.ToSuggestion()

		assert.Equal(t, "查询本月销售额", suggestion.Text)
		assert.InDelta(t, 2.51, suggestion.Score, 1e-9)
		assert.Equal(t, SourceHybrid, suggestion.Source)
		assert.Equal(t, "sales", suggestion.Metadata["category"])
	})
}

func TestAliasList(t *testing.T) {
	t.Run("逗号分隔的别名", func(t *testing.T) {
		dim := &MetaDimension{Aliases: "区域, 地区 ,大区"}
		assert.Equal(t, []string{"区域", "地区", "大区"}, dim.AliasList())
	})

	t.Run("空别名返回nil", func(t *testing.T) {
		metric := &MetaMetric{}
		assert.Nil(t, metric.AliasList())
	})

	t.Run("忽略空片段", func(t *testing.T) {
		metric := &MetaMetric{Aliases: "GMV,, 成交额"}
		assert.Equal(t, []string{"GMV", "成交额"}, metric.AliasList())
	})
}
