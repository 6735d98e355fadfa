package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"chatbi/internal/config"
	"chatbi/internal/errors"
	"chatbi/internal/logger"
)

// EmbeddingClient 向量化客户端，调用OpenAI兼容的embedding接口
type EmbeddingClient struct {
	httpClient *resty.Client
	config     config.EmbeddingConfig
	logger     *logger.Logger
}

// embeddingResponse embedding接口响应
type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// NewEmbeddingClient 创建向量化客户端
func NewEmbeddingClient(cfg *config.EmbeddingConfig) *EmbeddingClient {
	embeddingLogger := logger.NewLogger("embedding")

	httpClient := resty.New().
		SetBaseURL(cfg.APIBase).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryTimes).
		SetRetryWaitTime(cfg.RetryDelay).
		SetHeader("Content-Type", "application/json")

	if cfg.APIKey != "" {
		httpClient.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey))
	} else {
		embeddingLogger.Warn("Embedding API key is not set - requests may fail")
	}

	embeddingLogger.Info("Embedding client initialized", logger.Fields{
		"model":     cfg.Model,
		"api_base":  cfg.APIBase,
		"dimension": cfg.Dimension,
	})

	return &EmbeddingClient{
		httpClient: httpClient,
		config:     *cfg,
		logger:     embeddingLogger,
	}
}

// Dimension 返回配置的向量维度
func (ec *EmbeddingClient) Dimension() int {
	return ec.config.Dimension
}

// Encode 生成单个文本的向量
func (ec *EmbeddingClient) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrValidationFailed("text", "cannot be empty")
	}

	vectors, _, err := ec.callEmbeddingAPI(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeEmbeddingFailed, "Embedding API returned no data")
	}
	return vectors[0], nil
}

// EncodeBatch 批量生成向量，结果与输入顺序一致
func (ec *EmbeddingClient) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.ErrValidationFailed("texts", "cannot be empty")
	}

	vectors, tokensUsed, err := ec.callEmbeddingAPI(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeEmbeddingFailed, "Embedding API returned unexpected result count").
			WithContext(map[string]interface{}{
				"expected": len(texts),
				"actual":   len(vectors),
			})
	}

	ec.logger.Debug("Batch embeddings generated", logger.Fields{
		"batch_size":  len(texts),
		"tokens_used": tokensUsed,
	})
	return vectors, nil
}

// callEmbeddingAPI 调用embedding接口
func (ec *EmbeddingClient) callEmbeddingAPI(ctx context.Context, input []string) ([][]float32, int, error) {
	requestBody := map[string]interface{}{
		"model": ec.config.Model,
		"input": input,
	}

	result := &embeddingResponse{}
	resp, err := ec.httpClient.R().
		SetContext(ctx).
		SetBody(requestBody).
		SetResult(result).
		Post("/embeddings")
	if err != nil {
		biErr := errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeEmbeddingFailed, "Failed to call embedding API").
			WithCause(err).
			WithContext(map[string]interface{}{
				"batch_size": len(input),
			})
		ec.logger.LogChatBIError(biErr, "Embedding API call failed")
		return nil, 0, biErr
	}
	if resp.IsError() {
		biErr := errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeEmbeddingFailed, "Embedding API returned error status").
			WithDetails(fmt.Sprintf("status %d: %s", resp.StatusCode(), resp.String()))
		ec.logger.LogChatBIError(biErr, "Embedding API call failed")
		return nil, 0, biErr
	}

	// data可能乱序返回，按index归位
	vectors := make([][]float32, len(result.Data))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			continue
		}
		vectors[item.Index] = item.Embedding
	}

	// 校验向量维度与配置一致
	for i, v := range vectors {
		if len(v) != ec.config.Dimension {
			return nil, 0, errors.NewChatBIError(errors.ErrorTypeLLM, errors.ErrCodeEmbeddingFailed, "Embedding dimension mismatch").
				WithContext(map[string]interface{}{
					"index":    i,
					"expected": ec.config.Dimension,
					"actual":   len(v),
				})
		}
	}

	return vectors, result.Usage.TotalTokens, nil
}
