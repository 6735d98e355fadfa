package errors

import (
	"fmt"
	"time"
)

// ErrorType 错误类型枚举
type ErrorType string

const (
	// 系统级错误
	ErrorTypeSystem   ErrorType = "SYSTEM"
	ErrorTypeDatabase ErrorType = "DATABASE"
	ErrorTypeNetwork  ErrorType = "NETWORK"
	ErrorTypeConfig   ErrorType = "CONFIG"

	// 业务级错误
	ErrorTypeBusiness   ErrorType = "BUSINESS"
	ErrorTypeValidation ErrorType = "VALIDATION"

	// 集成错误
	ErrorTypeSearch  ErrorType = "SEARCH"
	ErrorTypeHistory ErrorType = "HISTORY"
	ErrorTypeVector  ErrorType = "VECTOR"
	ErrorTypeLLM     ErrorType = "LLM"
)

// ErrorCode 错误码
type ErrorCode string

const (
	// 系统错误码 (E1xxx)
	ErrCodeSystemGeneric   ErrorCode = "E1000"
	ErrCodeDatabaseConnect ErrorCode = "E1001"
	ErrCodeDatabaseQuery   ErrorCode = "E1002"
	ErrCodeNetworkTimeout  ErrorCode = "E1003"
	ErrCodeConfigMissing   ErrorCode = "E1004"
	ErrCodeConfigInvalid   ErrorCode = "E1005"

	// 业务错误码 (E2xxx)
	ErrCodeValidationFailed ErrorCode = "E2001"
	ErrCodeResourceNotFound ErrorCode = "E2002"
	ErrCodeInvalidInput     ErrorCode = "E2004"

	// 集成错误码 (E3xxx)
	ErrCodeSearchQuery     ErrorCode = "E3001"
	ErrCodeSearchIndex     ErrorCode = "E3002"
	ErrCodeLLMAPICall      ErrorCode = "E3003"
	ErrCodeVectorStorage   ErrorCode = "E3004"
	ErrCodeHistoryStore    ErrorCode = "E3005"
	ErrCodeEmbeddingFailed ErrorCode = "E3006"
)

// ChatBIError 统一错误结构
type ChatBIError struct {
	Type      ErrorType   `json:"type"`
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Details   string      `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Context   interface{} `json:"context,omitempty"`
	Cause     error       `json:"-"` // 原始错误，不序列化
}

// Error 实现error接口
func (e *ChatBIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s - %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap 支持错误链
func (e *ChatBIError) Unwrap() error {
	return e.Cause
}

// NewChatBIError 创建新的ChatBI错误
func NewChatBIError(errorType ErrorType, code ErrorCode, message string) *ChatBIError {
	return &ChatBIError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithDetails 添加详细信息
func (e *ChatBIError) WithDetails(details string) *ChatBIError {
	e.Details = details
	return e
}

// WithContext 添加上下文信息
func (e *ChatBIError) WithContext(context interface{}) *ChatBIError {
	e.Context = context
	return e
}

// WithCause 添加原始错误
func (e *ChatBIError) WithCause(cause error) *ChatBIError {
	e.Cause = cause
	return e
}

// IsType 检查错误类型
func (e *ChatBIError) IsType(errorType ErrorType) bool {
	return e.Type == errorType
}

// IsCode 检查错误码
func (e *ChatBIError) IsCode(code ErrorCode) bool {
	return e.Code == code
}

// 预定义常用错误

// ErrValidationFailed 验证失败错误
func ErrValidationFailed(field, reason string) *ChatBIError {
	return NewChatBIError(ErrorTypeValidation, ErrCodeValidationFailed, "Validation failed").
		WithDetails(fmt.Sprintf("Field '%s': %s", field, reason))
}

// ErrConfigMissing 配置缺失错误
func ErrConfigMissing(configKey string) *ChatBIError {
	return NewChatBIError(ErrorTypeConfig, ErrCodeConfigMissing, "Required configuration missing").
		WithDetails(fmt.Sprintf("Missing config key: %s", configKey))
}

// ErrConfigInvalid 配置无效错误
func ErrConfigInvalid(configKey, reason string) *ChatBIError {
	return NewChatBIError(ErrorTypeConfig, ErrCodeConfigInvalid, "Invalid configuration").
		WithDetails(fmt.Sprintf("Config key '%s': %s", configKey, reason))
}

// ErrResourceNotFound 资源未找到错误
func ErrResourceNotFound(resourceType, resourceID string) *ChatBIError {
	return NewChatBIError(ErrorTypeBusiness, ErrCodeResourceNotFound, "Resource not found").
		WithDetails(fmt.Sprintf("%s with ID '%s' not found", resourceType, resourceID))
}

// ErrSearchQuery 搜索查询错误
func ErrSearchQuery(details string, cause error) *ChatBIError {
	return NewChatBIError(ErrorTypeSearch, ErrCodeSearchQuery, "Search query failed").
		WithDetails(details).
		WithCause(cause)
}

// ErrHistoryStore 历史存储错误
func ErrHistoryStore(details string, cause error) *ChatBIError {
	return NewChatBIError(ErrorTypeHistory, ErrCodeHistoryStore, "History store operation failed").
		WithDetails(details).
		WithCause(cause)
}

// ErrDatabaseConnection 数据库连接错误
func ErrDatabaseConnection(details string, cause error) *ChatBIError {
	return NewChatBIError(ErrorTypeDatabase, ErrCodeDatabaseConnect, "Failed to connect to database").
		WithDetails(details).
		WithCause(cause)
}
