package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KuzeyMurathan/shadchat/internal/api"
	"github.com/KuzeyMurathan/shadchat/internal/interfaces/mocks"
	"github.com/KuzeyMurathan/shadchat/internal/service"
)

func setupSettingsHandler(t *testing.T) (*api.SettingsHandler, *mocks.MockSettingsService) {
	mockSettingsSvc := mocks.NewMockSettingsService(t)
	handler := api.NewSettingsHandler(mockSettingsSvc)
	return handler, mockSettingsSvc
}

func TestSettingsHandler_HandleGetSettings(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockSvc := setupSettingsHandler(t)

		stored := &service.Settings{
			SystemPrompt: "Be helpful.",
			APIKeys:      map[string]string{"openai": "••••1234"},
		}
		mockSvc.On("Get", mock.Anything).Return(stored, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
		rr := httptest.NewRecorder()

		handler.HandleGetSettings(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp service.Settings
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "Be helpful.", resp.SystemPrompt)
		// The wire carries the masked form, never the raw key.
		assert.Equal(t, "••••1234", resp.APIKeys["openai"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("Failure - Storage error maps to 500", func(t *testing.T) {
		handler, mockSvc := setupSettingsHandler(t)
		mockSvc.On("Get", mock.Anything).Return(nil, errors.New("db down")).Once()

		req := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
		rr := httptest.NewRecorder()

		handler.HandleGetSettings(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestSettingsHandler_HandleUpdateSettings(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockSvc := setupSettingsHandler(t)

		mockSvc.On("Save", mock.Anything, mock.MatchedBy(func(s *service.Settings) bool {
			return s.SystemPrompt == "Answer in haiku." && s.APIKeys["anthropic"] == "sk-ant-new"
		})).Return(nil).Once()

		reqBody := `{"system_prompt": "Answer in haiku.", "api_keys": {"anthropic": "sk-ant-new"}}`
		req := httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(reqBody))
		rr := httptest.NewRecorder()

		handler.HandleUpdateSettings(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "ok")
		mockSvc.AssertExpectations(t)
	})

	t.Run("Failure - Invalid JSON", func(t *testing.T) {
		handler, _ := setupSettingsHandler(t)

		req := httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(`{"system_prompt":`))
		rr := httptest.NewRecorder()

		handler.HandleUpdateSettings(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid request payload")
	})
}
