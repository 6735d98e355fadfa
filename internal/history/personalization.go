package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
	"chatbi/internal/models"
)

const (
	selectionTTL  = 30 * 24 * time.Hour
	topPrefsLimit = 50
)

// Personalizer 个性化加权器，记录用户选择并对建议列表做加权重排
type Personalizer struct {
	store    Store
	weight   float64
	capacity int
	logger   *logger.Logger
}

// NewPersonalizer 创建个性化加权器
func NewPersonalizer(store Store, cfg *config.AutocompleteConfig) *Personalizer {
	capacity := cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = 1000
	}

	return &Personalizer{
		store:    store,
		weight:   cfg.PersonalizationWeight,
		capacity: capacity,
		logger:   logger.NewLogger("personalization"),
	}
}

func historyKey(userID string) string {
	return fmt.Sprintf("user:%s:history", userID)
}

func selectionKey(userID, query string) string {
	return fmt.Sprintf("user:%s:query:%s", userID, query)
}

func frequencyKey(userID string) string {
	return fmt.Sprintf("user:%s:freq", userID)
}

func globalQueryKey(query string) string {
	return fmt.Sprintf("global:query:%s", query)
}

// TrackSelection 记录一次用户选择
// 全局计数始终写入，用户级键仅在提供用户ID时写入，任一写入失败即返回错误
func (p *Personalizer) TrackSelection(ctx context.Context, userID, query, selected string) error {
	if query == "" || selected == "" {
		return errors.ErrValidationFailed("feedback", "query and selected cannot be empty")
	}

	if err := p.store.SortedIncr(ctx, globalQueryKey(query), selected, 1); err != nil {
		return err
	}

	if userID == "" {
		return nil
	}

	entry := models.HistoryEntry{
		Query:     query,
		Selected:  selected,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.ErrHistoryStore("failed to marshal history entry", err)
	}

	if err := p.store.ListPush(ctx, historyKey(userID), string(payload)); err != nil {
		return err
	}
	if err := p.store.ListTrim(ctx, historyKey(userID), 0, int64(p.capacity-1)); err != nil {
		return err
	}
	if err := p.store.SetWithTTL(ctx, selectionKey(userID, query), selected, selectionTTL); err != nil {
		return err
	}
	if err := p.store.SortedIncr(ctx, frequencyKey(userID), selected, 1); err != nil {
		return err
	}

	p.logger.Debug("Selection tracked", logger.Fields{
		"user_id": userID,
		"query":   query,
	})
	return nil
}

// LastSelectionFor 查询用户对某个查询最近一次的选择
func (p *Personalizer) LastSelectionFor(ctx context.Context, userID, query string) (string, bool, error) {
	if userID == "" {
		return "", false, nil
	}
	return p.store.Get(ctx, selectionKey(userID, query))
}

// UserPreferences 查询用户高频选择的建议文本
func (p *Personalizer) UserPreferences(ctx context.Context, userID string, limit int) ([]string, error) {
	if userID == "" {
		return nil, nil
	}

	members, err := p.store.SortedTopDesc(ctx, frequencyKey(userID), int64(limit))
	if err != nil {
		return nil, err
	}

	prefs := make([]string, 0, len(members))
	for _, m := range members {
		prefs = append(prefs, m.Member)
	}
	return prefs, nil
}

// RecentHistory 读取用户最近的查询历史
func (p *Personalizer) RecentHistory(ctx context.Context, userID string, limit int) ([]models.HistoryEntry, error) {
	if userID == "" || limit <= 0 {
		return nil, nil
	}

	raw, err := p.store.ListRange(ctx, historyKey(userID), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			// 跳过损坏的历史记录
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Apply 对建议列表做个性化加权
// 与用户上次选择完全一致的建议加权1+2f，属于用户高频选择的加权1+f，加权后重新排序
// 未提供用户ID时原样返回，存储查询失败时记录日志并原样返回
func (p *Personalizer) Apply(ctx context.Context, userID, query string, suggestions []models.Suggestion) []models.Suggestion {
	if userID == "" || len(suggestions) == 0 {
		return suggestions
	}

	lastSelection, hasLast, err := p.LastSelectionFor(ctx, userID, query)
	if err != nil {
		p.logger.WithError(err).Warn("Personalization lookup failed, returning suggestions unchanged", logger.Fields{
			"user_id": userID,
		})
		return suggestions
	}

	prefs, err := p.UserPreferences(ctx, userID, topPrefsLimit)
	if err != nil {
		p.logger.WithError(err).Warn("Personalization lookup failed, returning suggestions unchanged", logger.Fields{
			"user_id": userID,
		})
		return suggestions
	}

	prefSet := make(map[string]struct{}, len(prefs))
	for _, pref := range prefs {
		prefSet[pref] = struct{}{}
	}

	boosted := make([]models.Suggestion, len(suggestions))
	copy(boosted, suggestions)

	for i := range boosted {
		if hasLast && boosted[i].Text == lastSelection {
			boosted[i].Score *= 1 + 2*p.weight
			boosted[i].Source = models.SourcePersonalized
			continue
		}
		if _, ok := prefSet[boosted[i].Text]; ok {
			boosted[i].Score *= 1 + p.weight
			if !strings.HasSuffix(boosted[i].Source, "+"+models.SourcePersonalized) {
				boosted[i].Source = boosted[i].Source + "+" + models.SourcePersonalized
			}
		}
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})
	return boosted
}
