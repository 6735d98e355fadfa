package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
)

// Client LLM API客户端
type Client struct {
	httpClient *resty.Client
	config     config.LLMConfig
	logger     *logger.Logger
}

// ChatMessage 对话消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest 聊天完成请求
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

// ChatCompletionChoice 响应选项
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletionUsage token使用统计
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse 聊天完成响应
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   ChatCompletionUsage    `json:"usage"`
}

// NewClient 创建LLM客户端
func NewClient(cfg *config.LLMConfig) *Client {
	llmLogger := logger.NewLogger("llm-client")

	httpClient := resty.New().
		SetBaseURL(cfg.APIBase).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryTimes).
		SetRetryWaitTime(cfg.RetryDelay).
		SetHeader("Content-Type", "application/json")

	if cfg.APIKey != "" {
		httpClient.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey))
	}

	llmLogger.Info("LLM client initialized", logger.Fields{
		"provider":    cfg.Provider,
		"model":       cfg.Model,
		"api_base":    cfg.APIBase,
		"max_tokens":  cfg.MaxTokens,
		"temperature": cfg.Temperature,
	})

	return &Client{
		httpClient: httpClient,
		config:     *cfg,
		logger:     llmLogger,
	}
}

// ChatCompletion 执行聊天完成请求
func (c *Client) ChatCompletion(ctx context.Context, messages []ChatMessage) (*ChatCompletionResponse, error) {
	if len(messages) == 0 {
		return nil, errors.ErrValidationFailed("messages", "cannot be empty")
	}

	for i, msg := range messages {
		if msg.Role == "" {
			return nil, errors.ErrValidationFailed("messages", fmt.Sprintf("message %d: role cannot be empty", i))
		}
		if msg.Content == "" {
			return nil, errors.ErrValidationFailed("messages", fmt.Sprintf("message %d: content cannot be empty", i))
		}
	}

	request := ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stream:      false,
	}

	c.logger.Debug("Sending chat completion request", logger.Fields{
		"model":         request.Model,
		"message_count": len(messages),
	})

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&ChatCompletionResponse{}).
		Post("/chat/completions")
	if err != nil {
		biErr := errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeLLMAPICall, "Failed to call LLM API").
			WithCause(err).
			WithContext(map[string]interface{}{
				"model": request.Model,
			})
		c.logger.LogChatBIError(biErr, "LLM API call failed")
		return nil, biErr
	}

	if resp.StatusCode() != 200 {
		biErr := errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeLLMAPICall, "LLM API returned error status").
			WithDetails(fmt.Sprintf("Status: %d, Body: %s", resp.StatusCode(), string(resp.Body()))).
			WithContext(map[string]interface{}{
				"status_code": resp.StatusCode(),
				"model":       request.Model,
			})
		c.logger.LogChatBIError(biErr, "LLM API error response")
		return nil, biErr
	}

	result := resp.Result().(*ChatCompletionResponse)
	if result == nil || len(result.Choices) == 0 {
		biErr := errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeLLMAPICall, "LLM API returned no choices").
			WithContext(map[string]interface{}{
				"model": request.Model,
			})
		c.logger.LogChatBIError(biErr, "LLM API empty response")
		return nil, biErr
	}

	c.logger.Debug("Chat completion successful", logger.Fields{
		"response_id":  result.ID,
		"total_tokens": result.Usage.TotalTokens,
	})
	return result, nil
}

// SimpleCompletion 单轮对话完成
func (c *Client) SimpleCompletion(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	messages := []ChatMessage{
		{Role: "user", Content: userMessage},
	}
	if systemPrompt != "" {
		messages = append([]ChatMessage{{Role: "system", Content: systemPrompt}}, messages...)
	}

	response, err := c.ChatCompletion(ctx, messages)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeLLMAPICall, "LLM returned empty response")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
