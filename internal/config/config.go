package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"chatbi/internal/errors"
	"chatbi/internal/logger"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	OpenSearch   OpenSearchConfig   `mapstructure:"opensearch"`
	Redis        RedisConfig        `mapstructure:"redis"`
	VectorDB     VectorDBConfig     `mapstructure:"vector_db"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Autocomplete AutocompleteConfig `mapstructure:"autocomplete"`
	Metadata     MetadataConfig     `mapstructure:"metadata"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// OpenSearchConfig 搜索索引配置
type OpenSearchConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	UseSSL     bool          `mapstructure:"use_ssl"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	IndexName  string        `mapstructure:"index_name"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryTimes int           `mapstructure:"retry_times"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// RedisConfig 行为历史存储配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// EmbeddingConfig 向量化模型配置
type EmbeddingConfig struct {
	APIBase    string        `mapstructure:"api_base"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimension  int           `mapstructure:"dimension"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryTimes int           `mapstructure:"retry_times"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// LLMConfig LLM API配置
type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Provider    string        `mapstructure:"provider"`
	APIBase     string        `mapstructure:"api_base"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryTimes  int           `mapstructure:"retry_times"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// AutocompleteConfig 自动补全策略配置
type AutocompleteConfig struct {
	MaxSuggestions          int     `mapstructure:"max_suggestions"`
	MinScore                float64 `mapstructure:"min_score"`
	KeywordWeight           float64 `mapstructure:"keyword_weight"`
	VectorWeight            float64 `mapstructure:"vector_weight"`
	RelatedKeywordWeight    float64 `mapstructure:"related_keyword_weight"`
	RelatedVectorWeight     float64 `mapstructure:"related_vector_weight"`
	PersonalizationWeight   float64 `mapstructure:"personalization_weight"`
	EnablePersonalization   bool    `mapstructure:"enable_personalization"`
	EnablePrefixPreserving  bool    `mapstructure:"enable_prefix_preserving"`
	MinTokensForPrefixMode  int     `mapstructure:"min_tokens_for_prefix_mode"`
	MinIncompleteTermLength int     `mapstructure:"min_incomplete_term_length"`
	CandidateLimit          int     `mapstructure:"candidate_limit"`
	LLMResultLimit          int     `mapstructure:"llm_result_limit"`
	HistoryCapacity         int     `mapstructure:"history_capacity"`
	HistoryFillScore        float64 `mapstructure:"history_fill_score"`
}

// MetadataConfig 元数据库配置
type MetadataConfig struct {
	Type        string `mapstructure:"type"`
	Path        string `mapstructure:"path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	configLogger := logger.NewLogger("config")

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 设置环境变量前缀
	v.SetEnvPrefix("CHATBI")
	v.AutomaticEnv()

	// 绑定特定的环境变量
	v.BindEnv("llm.api_key", "CHATBI_LLM_API_KEY")
	v.BindEnv("embedding.api_key", "CHATBI_EMBEDDING_API_KEY")
	v.BindEnv("opensearch.password", "CHATBI_OPENSEARCH_PASSWORD")
	v.BindEnv("redis.password", "CHATBI_REDIS_PASSWORD")

	setDefaults(v)

	configLogger.Info("Loading configuration", logger.Fields{
		"config_path": configPath,
	})

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		biErr := errors.ErrConfigInvalid("config_file", err.Error()).
			WithCause(err).
			WithContext(map[string]interface{}{
				"config_path": configPath,
			})
		configLogger.LogChatBIError(biErr, "Failed to read configuration file")
		return nil, biErr
	}

	// 解析配置到结构体
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		biErr := errors.ErrConfigInvalid("config_unmarshal", err.Error()).
			WithCause(err)
		configLogger.LogChatBIError(biErr, "Failed to unmarshal configuration")
		return nil, biErr
	}

	processEnvironmentOverrides(config, configLogger)

	// 验证配置，缺失关键索引/模型配置时启动失败
	if err := validateConfig(config); err != nil {
		configLogger.LogChatBIError(err.(*errors.ChatBIError), "Configuration validation failed")
		return nil, err
	}

	configLogger.Info("Configuration loaded successfully", logger.Fields{
		"server_port":      config.Server.Port,
		"opensearch_index": config.OpenSearch.IndexName,
		"vector_dimension": config.Embedding.Dimension,
		"llm_enabled":      config.LLM.Enabled,
	})

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("opensearch.host", "localhost")
	v.SetDefault("opensearch.port", 9200)
	v.SetDefault("opensearch.index_name", "chatbi_autocomplete")
	v.SetDefault("opensearch.timeout", 10*time.Second)
	v.SetDefault("opensearch.retry_times", 2)
	v.SetDefault("opensearch.retry_delay", time.Second)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("vector_db.host", "localhost")
	v.SetDefault("vector_db.port", 8000)
	v.SetDefault("vector_db.collection", "chatbi_suggestions")
	v.SetDefault("vector_db.timeout", 30*time.Second)
	v.SetDefault("vector_db.batch_size", 100)
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.retry_times", 2)
	v.SetDefault("embedding.retry_delay", time.Second)
	v.SetDefault("llm.max_tokens", 150)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.retry_times", 2)
	v.SetDefault("llm.retry_delay", 2*time.Second)
	v.SetDefault("autocomplete.max_suggestions", 10)
	v.SetDefault("autocomplete.min_score", 0.1)
	v.SetDefault("autocomplete.keyword_weight", 0.7)
	v.SetDefault("autocomplete.vector_weight", 0.3)
	v.SetDefault("autocomplete.related_keyword_weight", 0.6)
	v.SetDefault("autocomplete.related_vector_weight", 0.4)
	v.SetDefault("autocomplete.personalization_weight", 0.2)
	v.SetDefault("autocomplete.enable_personalization", true)
	v.SetDefault("autocomplete.enable_prefix_preserving", true)
	v.SetDefault("autocomplete.min_tokens_for_prefix_mode", 5)
	v.SetDefault("autocomplete.min_incomplete_term_length", 1)
	v.SetDefault("autocomplete.candidate_limit", 20)
	v.SetDefault("autocomplete.llm_result_limit", 10)
	v.SetDefault("autocomplete.history_capacity", 1000)
	v.SetDefault("autocomplete.history_fill_score", 0.70)
	v.SetDefault("metadata.type", "sqlite")
	v.SetDefault("metadata.path", "chatbi_metadata.db")
	v.SetDefault("metadata.auto_migrate", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	// 验证服务器配置
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return errors.ErrConfigInvalid("server.port", "must be between 1 and 65535")
	}

	if config.Server.Mode != "development" && config.Server.Mode != "production" {
		return errors.ErrConfigInvalid("server.mode", "must be 'development' or 'production'")
	}

	// 验证搜索索引配置
	if config.OpenSearch.Host == "" {
		return errors.ErrConfigMissing("opensearch.host")
	}

	if config.OpenSearch.IndexName == "" {
		return errors.ErrConfigMissing("opensearch.index_name")
	}

	// 验证向量化模型配置
	if config.Embedding.APIBase == "" {
		return errors.ErrConfigMissing("embedding.api_base")
	}

	if config.Embedding.Model == "" {
		return errors.ErrConfigMissing("embedding.model")
	}

	if config.Embedding.Dimension <= 0 {
		return errors.ErrConfigInvalid("embedding.dimension", "must be greater than 0")
	}

	// 验证LLM配置（仅在启用时）
	if config.LLM.Enabled {
		if config.LLM.APIBase == "" {
			return errors.ErrConfigMissing("llm.api_base")
		}
		if config.LLM.Model == "" {
			return errors.ErrConfigMissing("llm.model")
		}
		if config.LLM.Temperature < 0 || config.LLM.Temperature > 2 {
			return errors.ErrConfigInvalid("llm.temperature", "must be between 0 and 2")
		}
	}

	// 验证向量数据库配置（仅在启用时）
	if config.VectorDB.Enabled && config.VectorDB.Collection == "" {
		return errors.ErrConfigMissing("vector_db.collection")
	}

	// 验证融合权重
	if config.Autocomplete.KeywordWeight < 0 || config.Autocomplete.VectorWeight < 0 {
		return errors.ErrConfigInvalid("autocomplete", "fusion weights must not be negative")
	}

	// 验证元数据库配置
	if config.Metadata.Type != "sqlite" {
		return errors.ErrConfigInvalid("metadata.type", "only 'sqlite' is supported")
	}

	// 验证日志配置
	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLogLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return errors.ErrConfigInvalid("logging.level", "must be one of: debug, info, warn, error")
	}

	return nil
}

// processEnvironmentOverrides 处理环境变量覆盖
func processEnvironmentOverrides(config *Config, configLogger *logger.Logger) {
	if apiKey := os.Getenv("CHATBI_LLM_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
		configLogger.Debug("LLM API key loaded from environment variable")
	}

	if apiKey := os.Getenv("CHATBI_EMBEDDING_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
		configLogger.Debug("Embedding API key loaded from environment variable")
	}

	if password := os.Getenv("CHATBI_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}

	if config.LLM.Enabled && config.LLM.APIKey == "" {
		configLogger.Warn("LLM API key is empty - related query expansion may not work")
	}
}

// ServerAddress 获取服务器监听地址
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Mode == "production"
}
