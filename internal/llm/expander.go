package llm

import (
	"context"
	"fmt"
	"strings"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
	"chatbi/internal/models"
)

const (
	relatedTopScore  = 0.95
	relatedScoreStep = 0.05

	relatedSystemPrompt = "你是一个商业数据分析助手。用户会给出一个数据查询问题，" +
		"请生成与之相关的后续查询问题，帮助用户深入分析。" +
		"每行输出一个查询，不要编号，不要解释。"

	rankSystemPrompt = "你是一个查询补全助手。用户的查询以一个不完整的词结尾，" +
		"请根据候选词补全查询。输出的每个查询必须以给定的前缀原样开头，" +
		"每行一个，不要编号，不要解释。"

	rewriteSystemPrompt = "你是一个商业数据查询改写助手。根据要求改写用户的查询，" +
		"只输出改写后的查询，不要解释。"
)

// Expander 基于LLM的查询扩展器，生成相关查询并约束前缀补全
type Expander struct {
	client  *Client
	config  config.LLMConfig
	enabled bool
	logger  *logger.Logger
}

// NewExpander 创建查询扩展器，未启用LLM时返回不可用的实例
func NewExpander(cfg *config.LLMConfig) *Expander {
	expanderLogger := logger.NewLogger("llm-expander")

	expander := &Expander{
		config:  *cfg,
		enabled: cfg.Enabled,
		logger:  expanderLogger,
	}
	if cfg.Enabled {
		expander.client = NewClient(cfg)
	} else {
		expanderLogger.Info("LLM expansion disabled")
	}
	return expander
}

// IsAvailable LLM扩展是否可用
func (e *Expander) IsAvailable() bool {
	return e.enabled && e.client != nil
}

// GenerateRelated 生成相关查询，按生成顺序从高到低赋分
func (e *Expander) GenerateRelated(ctx context.Context, query string, limit int) ([]models.Suggestion, error) {
	if !e.IsAvailable() {
		return nil, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.ErrValidationFailed("query", "cannot be empty")
	}
	if limit <= 0 {
		limit = 5
	}

	prompt := fmt.Sprintf("用户查询：%s\n请生成%d个相关的后续查询。", query, limit)
	raw, err := e.client.SimpleCompletion(ctx, relatedSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	items := parseListResponse(raw)
	suggestions := make([]models.Suggestion, 0, limit)
	for i, text := range items {
		if len(suggestions) >= limit {
			break
		}
		if strings.EqualFold(text, query) {
			continue
		}
		score := relatedTopScore - relatedScoreStep*float64(i)
		if score < 0 {
			score = 0
		}
		suggestions = append(suggestions, models.Suggestion{
			Text:   text,
			Score:  score,
			Source: models.SourceLLM,
			Metadata: map[string]interface{}{
				"generated_by": "llm",
				"provider":     e.config.Provider,
				"model":        e.config.Model,
			},
		})
	}

	e.logger.Debug("Related queries generated", logger.Fields{
		"query": query,
		"count": len(suggestions),
	})
	return suggestions, nil
}

// RankPrefixCompletions 约束前缀的补全排序
// 输出必须以给定前缀原样开头，不符合的条目被丢弃
func (e *Expander) RankPrefixCompletions(ctx context.Context, prefix, incompleteTerm string, candidates []string, limit int) ([]string, error) {
	if !e.IsAvailable() {
		return nil, nil
	}
	if prefix == "" || len(candidates) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	prompt := fmt.Sprintf(
		"前缀：%s\n不完整的词：%s\n候选词：%s\n请输出补全后的完整查询，按相关性从高到低排列。",
		prefix, incompleteTerm, strings.Join(candidates, "、"))

	raw, err := e.client.SimpleCompletion(ctx, rankSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	completions := make([]string, 0, limit)
	for _, line := range parseListResponse(raw) {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		completions = append(completions, line)
		if len(completions) >= limit {
			break
		}
	}
	return completions, nil
}

// RewriteQuery 按指定模式改写查询，模式为clarify、expand或formalize
func (e *Expander) RewriteQuery(ctx context.Context, query, mode string) (string, error) {
	if !e.IsAvailable() {
		return "", errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeLLMAPICall, "LLM expansion is disabled")
	}
	if strings.TrimSpace(query) == "" {
		return "", errors.ErrValidationFailed("query", "cannot be empty")
	}

	var instruction string
	switch mode {
	case "clarify":
		instruction = "将查询改写得更明确具体，消除歧义"
	case "expand":
		instruction = "扩展查询，补充可能遗漏的分析维度"
	case "formalize":
		instruction = "将口语化的查询改写为规范的业务查询表述"
	default:
		return "", errors.ErrValidationFailed("mode", "must be one of: clarify, expand, formalize")
	}

	prompt := fmt.Sprintf("改写要求：%s\n用户查询：%s", instruction, query)
	rewritten, err := e.client.SimpleCompletion(ctx, rewriteSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(rewritten), nil
}

// parseListResponse 解析LLM返回的列表文本
// 支持按行或逗号分隔，剥离编号、项目符号和引号
func parseListResponse(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var parts []string
	if strings.Contains(raw, "\n") {
		parts = strings.Split(raw, "\n")
	} else {
		parts = strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == '，' || r == ';' || r == '；'
		})
	}

	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		item = stripListMarker(item)
		item = strings.Trim(item, `"'“”`)
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// stripListMarker 剥离行首的编号或项目符号
func stripListMarker(line string) string {
	line = strings.TrimLeft(line, "-*• \t")

	digits := 0
	for digits < len(line) && line[digits] >= '0' && line[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(line) {
		rest := line[digits:]
		for _, marker := range []string{".", ")", ":", "、"} {
			if strings.HasPrefix(rest, marker) {
				return strings.TrimSpace(rest[len(marker):])
			}
		}
	}
	return line
}
