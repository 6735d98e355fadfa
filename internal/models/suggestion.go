package models

import "time"

// 建议来源标识
const (
	SourceKeyword         = "keyword"
	SourceVector          = "vector"
	SourceHybrid          = "hybrid"
	SourcePersonalized    = "personalized"
	SourceSequenceNext    = "sequence_next"
	SourceSequencePrev    = "sequence_prev"
	SourceHistory         = "history"
	SourceLLM             = "llm"
	SourcePrefixPreserved = "prefix_preserved"
)

// Suggestion 返回给调用方的查询建议
type Suggestion struct {
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Source   string                 `json:"source"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Candidate 融合阶段的候选条目，按文档ID归并关键词和向量两路得分
type Candidate struct {
	DocID        string                 `json:"doc_id"`
	Text         string                 `json:"text"`
	KeywordScore float64                `json:"keyword_score"`
	VectorScore  float64                `json:"vector_score"`
	Score        float64                `json:"score"`
	Source       string                 `json:"source"`
	Keywords     []string               `json:"keywords,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToSuggestion 转换为对外建议结构
func (c *Candidate) ToSuggestion() Suggestion {
	return Suggestion{
		Text:     c.Text,
		Score:    c.Score,
		Source:   c.Source,
		Metadata: c.Metadata,
	}
}

// HistoryEntry 用户查询历史记录项
type HistoryEntry struct {
	Query     string    `json:"query"`
	Selected  string    `json:"selected"`
	Timestamp time.Time `json:"timestamp"`
}

// Document 建议索引中的文档
type Document struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	Keywords  []string               `json:"keywords,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Frequency int64                  `json:"frequency"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// AutocompleteRequest 自动补全请求
type AutocompleteRequest struct {
	Query  string `json:"query" binding:"required"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

// FeedbackRequest 用户选择反馈请求
type FeedbackRequest struct {
	Query    string `json:"query" binding:"required"`
	Selected string `json:"selected_suggestion" binding:"required"`
	UserID   string `json:"user_id"`
}

// DocumentRequest 单文档写入请求
type DocumentRequest struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text" binding:"required"`
	Keywords []string               `json:"keywords"`
	Metadata map[string]interface{} `json:"metadata"`
}

// BulkDocumentRequest 批量文档写入请求
type BulkDocumentRequest struct {
	Documents []DocumentRequest `json:"documents" binding:"required"`
}

// SuggestionResponse 自动补全响应
type SuggestionResponse struct {
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
	Total       int          `json:"total"`
}

// SimilarQueriesResponse 相似查询响应
type SimilarQueriesResponse struct {
	Query          string       `json:"query"`
	SimilarQueries []Suggestion `json:"similar_queries"`
	Total          int          `json:"total"`
}

// RelatedQueriesResponse 相关查询推荐响应
type RelatedQueriesResponse struct {
	Query          string       `json:"query"`
	RelatedQueries []Suggestion `json:"related_queries"`
	Total          int          `json:"total"`
}

// FeedbackResponse 反馈写入响应
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// BulkDocumentResponse 批量写入结果
type BulkDocumentResponse struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

// ErrorResponse 统一错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
