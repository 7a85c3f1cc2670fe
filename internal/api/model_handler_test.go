package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KuzeyMurathan/shadchat/internal/api"
	"github.com/KuzeyMurathan/shadchat/internal/interfaces/mocks"
	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/provider"
)

func setupModelHandler(t *testing.T) (*api.ModelHandler, *mocks.MockModelService) {
	mockModelSvc := mocks.NewMockModelService(t)
	handler := api.NewModelHandler(mockModelSvc)
	return handler, mockModelSvc
}

func TestModelHandler_HandleListProviders(t *testing.T) {
	handler, mockSvc := setupModelHandler(t)
	mockSvc.On("Providers").Return([]string{"anthropic", "gemini", "openai"}).Once()

	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	rr := httptest.NewRecorder()

	handler.HandleListProviders(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp api.ProvidersResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"anthropic", "gemini", "openai"}, resp.Providers)
	mockSvc.AssertExpectations(t)
}

func TestModelHandler_HandleListModels(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockSvc := setupModelHandler(t)

		catalog := []model.ModelInfo{
			{ID: "gpt-4o", Name: "gpt-4o", ContextLength: 128000, SupportsImages: true},
			{ID: "o1-mini", Name: "o1-mini", ContextLength: 128000},
		}
		mockSvc.On("ListModels", mock.Anything, "openai").Return(catalog, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/v1/providers/openai/models", nil)
		req = addChiURLParams(req, map[string]string{"provider": "openai"})
		rr := httptest.NewRecorder()

		handler.HandleListModels(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp []model.ModelInfo
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp, 2)
		assert.Equal(t, "gpt-4o", resp[0].ID)
		assert.True(t, resp[0].SupportsImages)
		mockSvc.AssertExpectations(t)
	})

	t.Run("Failure - Unknown provider maps to 400", func(t *testing.T) {
		handler, mockSvc := setupModelHandler(t)

		mockSvc.On("ListModels", mock.Anything, "acme").
			Return(nil, provider.ErrUnknownProvider).Once()

		req := httptest.NewRequest(http.MethodGet, "/v1/providers/acme/models", nil)
		req = addChiURLParams(req, map[string]string{"provider": "acme"})
		rr := httptest.NewRecorder()

		handler.HandleListModels(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("Failure - Vendor catalog failure maps to 502", func(t *testing.T) {
		handler, mockSvc := setupModelHandler(t)

		mockSvc.On("ListModels", mock.Anything, "openai").
			Return(nil, &provider.Error{Provider: "openai", Kind: provider.KindCatalog, Status: 500, Message: "upstream exploded"}).Once()

		req := httptest.NewRequest(http.MethodGet, "/v1/providers/openai/models", nil)
		req = addChiURLParams(req, map[string]string{"provider": "openai"})
		rr := httptest.NewRecorder()

		handler.HandleListModels(rr, req)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		// The vendor's own message is logged, not leaked.
		assert.NotContains(t, rr.Body.String(), "upstream exploded")
		mockSvc.AssertExpectations(t)
	})
}
