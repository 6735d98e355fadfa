package suggest

import (
	"sort"
	"strings"

	"chatbi/internal/logger"
	"chatbi/internal/models"
)

// 扩展来源的合并优先级，数值越小优先级越高
// 去重时保留先到的条目，优先级只决定拼接顺序
const (
	PriorityLLM = iota
	PrioritySequenceNext
	PrioritySequencePrev
	PriorityHybrid
	PriorityHistory
)

// ExpansionGroup 一组带优先级的扩展建议
type ExpansionGroup struct {
	Priority    int
	Suggestions []models.Suggestion
}

// Merger 扩展合并器，将多路推荐拼接去重排序
type Merger struct {
	logger *logger.Logger
}

// NewMerger 创建扩展合并器
func NewMerger() *Merger {
	return &Merger{
		logger: logger.NewLogger("merger"),
	}
}

// Merge 按优先级拼接各组建议，忽略大小写去重并排除输入查询本身
// 最终按得分降序稳定排序后截断
func (m *Merger) Merge(query string, limit int, groups ...ExpansionGroup) []models.Suggestion {
	if limit <= 0 {
		return nil
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Priority < groups[j].Priority
	})

	excluded := strings.ToLower(strings.TrimSpace(query))
	seen := make(map[string]struct{})
	merged := make([]models.Suggestion, 0, limit)

	for _, group := range groups {
		for _, suggestion := range group.Suggestions {
			text := strings.TrimSpace(suggestion.Text)
			if text == "" {
				continue
			}
			key := strings.ToLower(text)
			if key == excluded {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, suggestion)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}

	m.logger.Debug("Expansion groups merged", logger.Fields{
		"groups": len(groups),
		"merged": len(merged),
	})
	return merged
}
