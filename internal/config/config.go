package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the full runtime configuration of the assistant service.
type Config struct {
	Server    ServerConfig
	Providers ProviderConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

// ProviderConfig points at the embedding and generative-model services.
// Both speak the OpenAI-compatible HTTP API.
type ProviderConfig struct {
	BaseURL             string
	APIKey              string
	ChatModel           string
	EmbedModel          string
	Temperature         float64
	MaxAnswerTokens     int
	EmbedTimeoutSeconds int
	ChatTimeoutSeconds  int
}

type StorageConfig struct {
	DataDir string
}

// PipelineConfig carries the tunables of the retrieval pipeline. Defaults
// match the values the documentation corpus was calibrated against.
type PipelineConfig struct {
	MaxModulesPerQuery           int
	ModuleDetectionThreshold     float64
	ModuleKeywordBoost           float64
	RetrievalTopK                int
	RetrievalSimilarityThreshold float64
	MaxContextTokens             int
	JaccardThreshold             float64
	MemoryMaxTurns               int
	MemoryTTLHours               int
	CacheTTLHours                int
	MaxQuestionTokens            int
	TokenBudgetCapabilities      int
	TokenBudgetMemory            int
	TokenBudgetDocs              int
	TokenBudgetQuestion          int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Providers: ProviderConfig{
			BaseURL:             "https://api.openai.com/v1",
			ChatModel:           "gpt-4o-mini",
			EmbedModel:          "text-embedding-3-small",
			Temperature:         0.2,
			MaxAnswerTokens:     700,
			EmbedTimeoutSeconds: 15,
			ChatTimeoutSeconds:  60,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Pipeline: PipelineConfig{
			MaxModulesPerQuery:           3,
			ModuleDetectionThreshold:     0.5,
			ModuleKeywordBoost:           0.15,
			RetrievalTopK:                8,
			RetrievalSimilarityThreshold: 0.45,
			MaxContextTokens:             2000,
			JaccardThreshold:             0.8,
			MemoryMaxTurns:               5,
			MemoryTTLHours:               24,
			CacheTTLHours:                24,
			MaxQuestionTokens:            256,
			TokenBudgetCapabilities:      600,
			TokenBudgetMemory:            400,
			TokenBudgetDocs:              2000,
			TokenBudgetQuestion:          256,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "agendia-assistant")
	}
	return ".agendia-assistant"
}

// Load builds the configuration from defaults overridden by ASSISTANT_*
// environment variables. The provider API key is required; everything else
// has a usable default.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Providers.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: provider API key; set ASSISTANT_PROVIDER_API_KEY")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envInt("ASSISTANT_SERVER_PORT", &cfg.Server.Port)
	envStr("ASSISTANT_API_TOKEN", &cfg.Server.APIToken)

	envStr("ASSISTANT_PROVIDER_BASE_URL", &cfg.Providers.BaseURL)
	envStr("ASSISTANT_PROVIDER_API_KEY", &cfg.Providers.APIKey)
	envStr("ASSISTANT_CHAT_MODEL", &cfg.Providers.ChatModel)
	envStr("ASSISTANT_EMBED_MODEL", &cfg.Providers.EmbedModel)
	envFloat("ASSISTANT_TEMPERATURE", &cfg.Providers.Temperature)
	envInt("ASSISTANT_MAX_ANSWER_TOKENS", &cfg.Providers.MaxAnswerTokens)
	envInt("ASSISTANT_EMBED_TIMEOUT_SECONDS", &cfg.Providers.EmbedTimeoutSeconds)
	envInt("ASSISTANT_CHAT_TIMEOUT_SECONDS", &cfg.Providers.ChatTimeoutSeconds)

	envStr("ASSISTANT_DATA_DIR", &cfg.Storage.DataDir)

	envInt("ASSISTANT_MAX_MODULES_PER_QUERY", &cfg.Pipeline.MaxModulesPerQuery)
	envFloat("ASSISTANT_MODULE_DETECTION_THRESHOLD", &cfg.Pipeline.ModuleDetectionThreshold)
	envFloat("ASSISTANT_MODULE_KEYWORD_BOOST", &cfg.Pipeline.ModuleKeywordBoost)
	envInt("ASSISTANT_RETRIEVAL_TOP_K", &cfg.Pipeline.RetrievalTopK)
	envFloat("ASSISTANT_RETRIEVAL_SIMILARITY_THRESHOLD", &cfg.Pipeline.RetrievalSimilarityThreshold)
	envInt("ASSISTANT_MAX_CONTEXT_TOKENS", &cfg.Pipeline.MaxContextTokens)
	envFloat("ASSISTANT_JACCARD_THRESHOLD", &cfg.Pipeline.JaccardThreshold)
	envInt("ASSISTANT_MEMORY_MAX_TURNS", &cfg.Pipeline.MemoryMaxTurns)
	envInt("ASSISTANT_MEMORY_TTL_HOURS", &cfg.Pipeline.MemoryTTLHours)
	envInt("ASSISTANT_CACHE_TTL_HOURS", &cfg.Pipeline.CacheTTLHours)
	envInt("ASSISTANT_MAX_QUESTION_TOKENS", &cfg.Pipeline.MaxQuestionTokens)

	envStr("ASSISTANT_LOG_LEVEL", &cfg.Log.Level)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
