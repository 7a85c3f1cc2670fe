package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	AppPort       int    `mapstructure:"APP_PORT"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabasePath  string `mapstructure:"DATABASE_PATH"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	SystemPrompt  string `mapstructure:"SYSTEM_PROMPT"`

	OpenAIAPIKey     string `mapstructure:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	GeminiAPIKey     string `mapstructure:"GEMINI_API_KEY"`
	XAIAPIKey        string `mapstructure:"XAI_API_KEY"`
	GroqAPIKey       string `mapstructure:"GROQ_API_KEY"`
	OpenRouterAPIKey string `mapstructure:"OPENROUTER_API_KEY"`

	OpenAIBaseURL     string `mapstructure:"OPENAI_BASE_URL"`
	AnthropicBaseURL  string `mapstructure:"ANTHROPIC_BASE_URL"`
	GeminiBaseURL     string `mapstructure:"GEMINI_BASE_URL"`
	XAIBaseURL        string `mapstructure:"XAI_BASE_URL"`
	GroqBaseURL       string `mapstructure:"GROQ_BASE_URL"`
	OpenRouterBaseURL string `mapstructure:"OPENROUTER_BASE_URL"`

	// APIKeys and BaseURLs collect the per-provider values above under
	// their provider ids, which is how the rest of the application reads
	// them.
	APIKeys  map[string]string `mapstructure:"-"`
	BaseURLs map[string]string `mapstructure:"-"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("APP_PORT", 8000)
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("STORAGE_DRIVER", "sqlite")
	viper.SetDefault("DATABASE_PATH", "/data/shadchat.db")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("SYSTEM_PROMPT", "You are a helpful assistant.")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Viper's AutomaticEnv does not pick keys up during Unmarshal unless
	// they are bound explicitly.
	for _, key := range []string{
		"APP_PORT", "LOG_LEVEL", "STORAGE_DRIVER", "DATABASE_PATH", "REDIS_ADDR", "SYSTEM_PROMPT",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"XAI_API_KEY", "GROQ_API_KEY", "OPENROUTER_API_KEY",
		"OPENAI_BASE_URL", "ANTHROPIC_BASE_URL", "GEMINI_BASE_URL",
		"XAI_BASE_URL", "GROQ_BASE_URL", "OPENROUTER_BASE_URL",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.APIKeys = map[string]string{
		"openai":     cfg.OpenAIAPIKey,
		"anthropic":  cfg.AnthropicAPIKey,
		"gemini":     cfg.GeminiAPIKey,
		"xai":        cfg.XAIAPIKey,
		"groq":       cfg.GroqAPIKey,
		"openrouter": cfg.OpenRouterAPIKey,
	}
	cfg.BaseURLs = map[string]string{
		"openai":     cfg.OpenAIBaseURL,
		"anthropic":  cfg.AnthropicBaseURL,
		"gemini":     cfg.GeminiBaseURL,
		"xai":        cfg.XAIBaseURL,
		"groq":       cfg.GroqBaseURL,
		"openrouter": cfg.OpenRouterBaseURL,
	}

	return &cfg, nil
}
