package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KuzeyMurathan/shadchat/internal/config"
	app_errors "github.com/KuzeyMurathan/shadchat/internal/errors"
	"github.com/KuzeyMurathan/shadchat/internal/repository"
)

const (
	settingSystemPrompt    = "system_prompt"
	settingDefaultProvider = "default_provider"
	settingDefaultModel    = "default_model"
	apiKeyPrefix           = "api_key_"

	// keyMask prefixes API keys on the way out so a read-modify-write
	// cycle from a client can never overwrite a stored key with its own
	// masked echo.
	keyMask = "••••"
)

// Settings holds the dynamic application settings stored in the repository.
// API keys are keyed by provider id and come back masked from Get.
type Settings struct {
	SystemPrompt    string            `json:"system_prompt"`
	DefaultProvider string            `json:"default_provider"`
	DefaultModel    string            `json:"default_model"`
	APIKeys         map[string]string `json:"api_keys"`
}

type SettingsService struct {
	repo   repository.Repository
	cfg    *config.Config
	logger *slog.Logger
}

func NewSettingsService(repo repository.Repository, cfg *config.Config, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{repo: repo, cfg: cfg, logger: logger}
}

// Get assembles the current settings. Values never stored fall back to the
// environment configuration; API keys are masked.
func (s *SettingsService) Get(ctx context.Context) (*Settings, error) {
	stored, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	settings := &Settings{
		SystemPrompt:    stored[settingSystemPrompt],
		DefaultProvider: stored[settingDefaultProvider],
		DefaultModel:    stored[settingDefaultModel],
		APIKeys:         make(map[string]string),
	}
	if settings.SystemPrompt == "" {
		settings.SystemPrompt = s.cfg.SystemPrompt
	}

	for key, value := range stored {
		if provider, ok := strings.CutPrefix(key, apiKeyPrefix); ok && value != "" {
			settings.APIKeys[provider] = maskKey(value)
		}
	}
	// Keys that only exist in the environment still show up as configured.
	for provider, value := range s.cfg.APIKeys {
		if value == "" {
			continue
		}
		if _, ok := settings.APIKeys[provider]; !ok {
			settings.APIKeys[provider] = maskKey(value)
		}
	}
	return settings, nil
}

// Save merges the given settings over the stored ones. Empty fields are
// left untouched, so a client may send only what changed; masked API keys
// coming back from Get are ignored.
func (s *SettingsService) Save(ctx context.Context, settings *Settings) error {
	if settings.SystemPrompt != "" {
		if err := s.repo.SetSetting(ctx, settingSystemPrompt, settings.SystemPrompt); err != nil {
			return fmt.Errorf("failed to save system prompt: %w", err)
		}
	}
	if settings.DefaultProvider != "" {
		if err := s.repo.SetSetting(ctx, settingDefaultProvider, settings.DefaultProvider); err != nil {
			return fmt.Errorf("failed to save default provider: %w", err)
		}
	}
	if settings.DefaultModel != "" {
		if err := s.repo.SetSetting(ctx, settingDefaultModel, settings.DefaultModel); err != nil {
			return fmt.Errorf("failed to save default model: %w", err)
		}
	}
	for provider, key := range settings.APIKeys {
		if strings.HasPrefix(key, keyMask) {
			continue
		}
		if err := s.repo.SetSetting(ctx, apiKeyPrefix+provider, key); err != nil {
			return fmt.Errorf("failed to save API key for %s: %w", provider, err)
		}
	}
	return nil
}

// APIKey resolves the key used to call a provider: the stored setting wins,
// the environment is the fallback, and a missing key is a configuration
// error rather than a doomed upstream request.
func (s *SettingsService) APIKey(ctx context.Context, providerID string) (string, error) {
	stored, err := s.repo.GetSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load settings: %w", err)
	}
	if key := stored[apiKeyPrefix+providerID]; key != "" {
		return key, nil
	}
	if key := s.cfg.APIKeys[providerID]; key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: no API key configured for provider %q", app_errors.ErrConfiguration, providerID)
}

// SystemPrompt resolves the system prompt for outgoing exchanges.
func (s *SettingsService) SystemPrompt(ctx context.Context) (string, error) {
	stored, err := s.repo.GetSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load settings: %w", err)
	}
	if prompt := stored[settingSystemPrompt]; prompt != "" {
		return prompt, nil
	}
	return s.cfg.SystemPrompt, nil
}

// maskKey keeps just enough of a key to recognize it.
func maskKey(key string) string {
	if len(key) <= 4 {
		return keyMask
	}
	return keyMask + key[len(key)-4:]
}
