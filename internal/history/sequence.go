package history

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"chatbi/internal/logger"
	"chatbi/internal/models"
)

const (
	nextBaseScore  = 0.85
	nextMaxScore   = 0.95
	prevBaseScore  = 0.65
	prevMaxScore   = 0.75
	countScoreStep = 20.0
)

// SequenceMiner 查询序列挖掘，记录前后相邻的查询转移并给出顺向和逆向推荐
type SequenceMiner struct {
	store  Store
	logger *logger.Logger
}

// NewSequenceMiner 创建序列挖掘器
func NewSequenceMiner(store Store) *SequenceMiner {
	return &SequenceMiner{
		store:  store,
		logger: logger.NewLogger("sequence"),
	}
}

func globalSequenceKey(query string) string {
	return fmt.Sprintf("sequence:%s", query)
}

func userSequenceKey(userID, query string) string {
	return fmt.Sprintf("user:%s:sequence:%s", userID, query)
}

// Record 记录一次查询转移，前后查询相同或缺少前查询时不记录
func (sm *SequenceMiner) Record(ctx context.Context, userID, previousQuery, currentQuery string) error {
	if previousQuery == "" || currentQuery == "" || previousQuery == currentQuery {
		return nil
	}

	if err := sm.store.SortedIncr(ctx, globalSequenceKey(previousQuery), currentQuery, 1); err != nil {
		return err
	}

	if userID != "" {
		if err := sm.store.SortedIncr(ctx, userSequenceKey(userID, previousQuery), currentQuery, 1); err != nil {
			return err
		}
	}

	sm.logger.Debug("Query transition recorded", logger.Fields{
		"previous": previousQuery,
		"current":  currentQuery,
	})
	return nil
}

// nextScore 顺向推荐展示分，转移次数越多越接近上限
func nextScore(count float64) float64 {
	score := nextBaseScore + count/countScoreStep
	if score > nextMaxScore {
		return nextMaxScore
	}
	return score
}

// prevScore 逆向推荐展示分，上限始终低于顺向推荐
func prevScore(count float64) float64 {
	score := prevBaseScore + count/countScoreStep
	if score > prevMaxScore {
		return prevMaxScore
	}
	return score
}

// Next 查询之后常见的下一个查询，用户级转移优先，全局转移去重后补充
func (sm *SequenceMiner) Next(ctx context.Context, userID, query string, limit int) ([]models.Suggestion, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	suggestions := make([]models.Suggestion, 0, limit)

	if userID != "" {
		members, err := sm.store.SortedTopDesc(ctx, userSequenceKey(userID, query), int64(limit))
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			seen[m.Member] = struct{}{}
			suggestions = append(suggestions, models.Suggestion{
				Text:   m.Member,
				Score:  nextScore(m.Score),
				Source: models.SourceSequenceNext,
				Metadata: map[string]interface{}{
					"transition_count": m.Score,
					"scope":            "user",
				},
			})
		}
	}

	if len(suggestions) < limit {
		members, err := sm.store.SortedTopDesc(ctx, globalSequenceKey(query), int64(limit))
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if _, ok := seen[m.Member]; ok {
				continue
			}
			seen[m.Member] = struct{}{}
			suggestions = append(suggestions, models.Suggestion{
				Text:   m.Member,
				Score:  nextScore(m.Score),
				Source: models.SourceSequenceNext,
				Metadata: map[string]interface{}{
					"transition_count": m.Score,
					"scope":            "global",
				},
			})
			if len(suggestions) >= limit {
				break
			}
		}
	}

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

// Previous 查询之前常见的上一个查询
// 反向索引不单独维护，这里全量扫描序列键并逐个查询成员计数，只应在低频路径使用
func (sm *SequenceMiner) Previous(ctx context.Context, userID, query string, limit int) ([]models.Suggestion, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	suggestions := make([]models.Suggestion, 0, limit)

	if userID != "" {
		userPrefix := fmt.Sprintf("user:%s:sequence:", userID)
		userSuggestions, err := sm.scanPrevious(ctx, userPrefix+"*", userPrefix, query, limit, seen, "user")
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, userSuggestions...)
	}

	if len(suggestions) < limit {
		globalSuggestions, err := sm.scanPrevious(ctx, "sequence:*", "sequence:", query, limit-len(suggestions), seen, "global")
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, globalSuggestions...)
	}

	return suggestions, nil
}

// scanPrevious 收集全部匹配的前驱查询，按转移次数降序截断
// 截断不能发生在排序之前，扫描顺序不保证次数高的键先出现
func (sm *SequenceMiner) scanPrevious(ctx context.Context, pattern, prefix, query string, limit int, seen map[string]struct{}, scope string) ([]models.Suggestion, error) {
	keys, err := sm.store.Scan(ctx, pattern)
	if err != nil {
		return nil, err
	}

	type prevCandidate struct {
		text  string
		count float64
	}

	matched := make([]prevCandidate, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		previousQuery := strings.TrimPrefix(key, prefix)
		if previousQuery == "" || previousQuery == query {
			continue
		}
		if _, ok := seen[previousQuery]; ok {
			continue
		}

		count, exists, err := sm.store.SortedScore(ctx, key, query)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		seen[previousQuery] = struct{}{}
		matched = append(matched, prevCandidate{text: previousQuery, count: count})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].count > matched[j].count
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	suggestions := make([]models.Suggestion, 0, len(matched))
	for _, candidate := range matched {
		suggestions = append(suggestions, models.Suggestion{
			Text:   candidate.text,
			Score:  prevScore(candidate.count),
			Source: models.SourceSequencePrev,
			Metadata: map[string]interface{}{
				"transition_count": candidate.count,
				"scope":            scope,
			},
		})
	}
	return suggestions, nil
}
