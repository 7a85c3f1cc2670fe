package service

import (
	"context"
	"errors"

	app_errors "github.com/KuzeyMurathan/shadchat/internal/errors"
	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/provider"
)

// ModelService exposes the provider catalog.
type ModelService struct {
	registry *provider.Registry
	settings *SettingsService
}

// NewModelService creates a new ModelService.
func NewModelService(registry *provider.Registry, settings *SettingsService) *ModelService {
	return &ModelService{registry: registry, settings: settings}
}

// Providers returns the ids of all registered provider adapters.
func (s *ModelService) Providers() []string {
	return s.registry.IDs()
}

// ListModels fetches the model catalog for one provider. The fetch is
// attempted even without a configured API key: some catalogs are static
// and providers that do require auth will answer for themselves.
func (s *ModelService) ListModels(ctx context.Context, providerID string) ([]model.ModelInfo, error) {
	adapter, err := s.registry.Get(providerID)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.settings.APIKey(ctx, providerID)
	if err != nil && !errors.Is(err, app_errors.ErrConfiguration) {
		return nil, err
	}
	return adapter.FetchModels(ctx, apiKey)
}
