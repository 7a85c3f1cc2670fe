package api

import (
	"net/http"

	"github.com/KuzeyMurathan/shadchat/internal/interfaces"

	"github.com/go-chi/chi/v5"
)

// ModelHandler handles HTTP requests for the provider catalog.
type ModelHandler struct {
	service interfaces.ModelService
}

func NewModelHandler(svc interfaces.ModelService) *ModelHandler {
	return &ModelHandler{service: svc}
}

// HandleListProviders godoc
// @Summary      List providers
// @Description  Gets the ids of all registered provider adapters.
// @Tags         Models
// @Produce      json
// @Success      200  {object}  ProvidersResponse
// @Router       /v1/providers [get]
func (h *ModelHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, ProvidersResponse{Providers: h.service.Providers()})
}

// HandleListModels godoc
// @Summary      List models for a provider
// @Description  Fetches the model catalog from one provider, with pricing where known.
// @Tags         Models
// @Produce      json
// @Param        provider  path      string  true  "Provider ID"
// @Success      200       {array}   model.ModelInfo
// @Failure      400       {object}  ErrorResponse
// @Failure      502       {object}  ErrorResponse
// @Router       /v1/providers/{provider}/models [get]
func (h *ModelHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")
	models, err := h.service.ListModels(r.Context(), providerID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models)
}
