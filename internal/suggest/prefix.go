package suggest

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/go-ego/gse"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
	"chatbi/internal/models"
)

const (
	llmRankedBaseScore = 0.90
	fallbackBaseScore  = 0.80
	prefixScoreStep    = 0.05
)

// PrefixRanker 约束前缀的LLM补全排序
type PrefixRanker interface {
	IsAvailable() bool
	RankPrefixCompletions(ctx context.Context, prefix, incompleteTerm string, candidates []string, limit int) ([]string, error)
}

// PrefixAnalysis 长查询的前缀切分结果
type PrefixAnalysis struct {
	Prefix         string
	IncompleteTerm string
	TokenCount     int
}

// PrefixCompleter 前缀保持补全器
// 长查询只补全末尾未完成的词，已输入的前缀部分原样保留
type PrefixCompleter struct {
	segmenter      gse.Segmenter
	keyword        KeywordSource
	ranker         PrefixRanker
	minTokens      int
	minTermLength  int
	candidateLimit int
	logger         *logger.Logger
}

// NewPrefixCompleter 创建前缀保持补全器
func NewPrefixCompleter(keyword KeywordSource, ranker PrefixRanker, cfg *config.AutocompleteConfig) (*PrefixCompleter, error) {
	segmenter, err := gse.New()
	if err != nil {
		return nil, errors.NewChatBIError(errors.ErrorTypeSystem, errors.ErrCodeSystemGeneric, "Failed to initialize segmenter").
			WithCause(err)
	}

	minTokens := cfg.MinTokensForPrefixMode
	if minTokens <= 0 {
		minTokens = 5
	}
	minTermLength := cfg.MinIncompleteTermLength
	if minTermLength <= 0 {
		minTermLength = 1
	}
	candidateLimit := cfg.CandidateLimit
	if candidateLimit <= 0 {
		candidateLimit = 20
	}

	return &PrefixCompleter{
		segmenter:      segmenter,
		keyword:        keyword,
		ranker:         ranker,
		minTokens:      minTokens,
		minTermLength:  minTermLength,
		candidateLimit: candidateLimit,
		logger:         logger.NewLogger("prefix-completer"),
	}, nil
}

// Analyze 判断查询是否进入前缀保持模式
// 分词数达到阈值且末尾词满足最小长度时切分出前缀和未完成词
func (pc *PrefixCompleter) Analyze(query string) (*PrefixAnalysis, bool) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, false
	}

	tokens := make([]string, 0)
	for _, token := range pc.segmenter.Cut(trimmed, true) {
		if strings.TrimSpace(token) != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) < pc.minTokens {
		return nil, false
	}

	incompleteTerm := tokens[len(tokens)-1]
	if utf8.RuneCountInString(incompleteTerm) < pc.minTermLength {
		return nil, false
	}

	idx := strings.LastIndex(trimmed, incompleteTerm)
	if idx <= 0 {
		return nil, false
	}

	prefix := strings.TrimSpace(trimmed[:idx])
	if prefix == "" {
		return nil, false
	}

	return &PrefixAnalysis{
		Prefix:         prefix,
		IncompleteTerm: incompleteTerm,
		TokenCount:     len(tokens),
	}, true
}

// Complete 执行前缀保持补全
// 返回值第二项表示是否进入了前缀保持模式，进入后不再走常规补全管线
func (pc *PrefixCompleter) Complete(ctx context.Context, query string, limit int) ([]models.Suggestion, bool) {
	analysis, ok := pc.Analyze(query)
	if !ok {
		return nil, false
	}
	if limit <= 0 {
		limit = 10
	}

	pc.logger.Debug("Prefix preserving mode triggered", logger.Fields{
		"prefix":          analysis.Prefix,
		"incomplete_term": analysis.IncompleteTerm,
		"token_count":     analysis.TokenCount,
	})

	candidates := pc.searchCandidates(ctx, analysis.IncompleteTerm)
	if len(candidates) == 0 {
		return nil, true
	}

	if pc.ranker != nil && pc.ranker.IsAvailable() {
		ranked, err := pc.ranker.RankPrefixCompletions(ctx, analysis.Prefix, analysis.IncompleteTerm, candidates, limit)
		if err != nil {
			pc.logger.WithError(err).Warn("LLM ranking failed, falling back to candidate concatenation")
		} else if len(ranked) > 0 {
			return pc.buildSuggestions(ranked, analysis, "llm_ranked", llmRankedBaseScore, limit), true
		}
	}

	completions := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		completions = append(completions, analysis.Prefix+" "+candidate)
	}
	return pc.buildSuggestions(completions, analysis, "fallback", fallbackBaseScore, limit), true
}

// searchCandidates 用未完成词做关键词检索，取候选文本
func (pc *PrefixCompleter) searchCandidates(ctx context.Context, incompleteTerm string) []string {
	if pc.keyword == nil {
		return nil
	}

	hits, err := pc.keyword.KeywordSearch(ctx, incompleteTerm, pc.candidateLimit)
	if err != nil {
		pc.logger.WithError(err).Warn("Candidate search failed in prefix mode", logger.Fields{
			"incomplete_term": incompleteTerm,
		})
		return nil
	}

	seen := make(map[string]struct{})
	candidates := make([]string, 0, len(hits))
	for _, hit := range hits {
		text := strings.TrimSpace(hit.Text)
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		candidates = append(candidates, text)
	}
	return candidates
}

func (pc *PrefixCompleter) buildSuggestions(completions []string, analysis *PrefixAnalysis, method string, baseScore float64, limit int) []models.Suggestion {
	suggestions := make([]models.Suggestion, 0, limit)
	for i, text := range completions {
		if len(suggestions) >= limit {
			break
		}
		score := baseScore - prefixScoreStep*float64(i)
		if score < 0 {
			score = 0
		}
		suggestions = append(suggestions, models.Suggestion{
			Text:   text,
			Score:  score,
			Source: models.SourcePrefixPreserved,
			Metadata: map[string]interface{}{
				"prefix":          analysis.Prefix,
				"incomplete_term": analysis.IncompleteTerm,
				"method":          method,
			},
		})
	}
	return suggestions
}
