// internal/services/user/handler.go
package user

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	commonauth "platform-services/internal/common/auth"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/validation"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/me", h.GetSelf)
	r.Put("/me", h.UpdateSelf)
	r.Delete("/me", h.DeleteSelf)
	r.Get("/{id}", h.GetByID)
	return r
}

func (h *Handler) GetSelf(w http.ResponseWriter, r *http.Request) {
	userID := commonauth.UserID(r.Context())
	profile, err := h.service.GetSelf(r.Context(), userID)
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	profile, err := h.service.GetByID(r.Context(), commonauth.UserID(r.Context()), targetID)
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

var updateSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"displayName": {Type: "string", MinLength: intPtr(1), MaxLength: intPtr(100)},
	},
	Required:             []string{"displayName"},
	AdditionalProperties: false,
}

func (h *Handler) UpdateSelf(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("invalid JSON body"))
		return
	}
	if result := validation.ValidateInput(raw, updateSchema); !result.Valid {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; ")))
		return
	}

	displayName := strings.TrimSpace(raw["displayName"].(string))
	if displayName == "" {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("displayName must not be blank"))
		return
	}

	profile, err := h.service.UpdateSelf(r.Context(), commonauth.UserID(r.Context()), displayName)
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) DeleteSelf(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSelf(r.Context(), commonauth.UserID(r.Context())); err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intPtr(v int) *int { return &v }
