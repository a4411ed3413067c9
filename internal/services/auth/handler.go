// internal/services/auth/handler.go
package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	commonauth "platform-services/internal/common/auth"
	stderrors "platform-services/internal/common/errors"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/validation"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log.WithFields(map[string]interface{}{"handler": "auth"}),
	}
}

// Routes mounts the public auth endpoints plus the 2FA endpoints which need
// an authenticated user.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/2fa/enroll", h.EnrollTOTP)
		r.Post("/2fa/verify", h.VerifyTOTP)
	})

	return r
}

var registerSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"email":       {Type: "string", MaxLength: intPtr(254)},
		"password":    {Type: "string", MinLength: intPtr(8), MaxLength: intPtr(128)},
		"displayName": {Type: "string", MaxLength: intPtr(100)},
	},
	Required:             []string{"email", "password"},
	AdditionalProperties: false,
}

func intPtr(v int) *int { return &v }

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		stderrors.WriteHTTP(w, stderrors.NewValidationError("invalid JSON body"))
		return
	}

	if result := validation.ValidateInput(raw, registerSchema); !result.Valid {
		stderrors.WriteHTTP(w, stderrors.NewValidationError(joinMessages(result)))
		return
	}

	input := &RegisterInput{
		Email:    raw["email"].(string),
		Password: raw["password"].(string),
	}
	if name, ok := raw["displayName"].(string); ok {
		input.DisplayName = name
	}

	if !validation.ValidateEmail(input.Email) {
		stderrors.WriteHTTP(w, stderrors.NewValidationError("email: invalid format"))
		return
	}

	profile, err := h.service.Register(r.Context(), input)
	if err != nil {
		stderrors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var input LoginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		stderrors.WriteHTTP(w, stderrors.NewValidationError("invalid JSON body"))
		return
	}
	if input.Email == "" || input.Password == "" {
		stderrors.WriteHTTP(w, stderrors.NewValidationError("email and password are required"))
		return
	}

	pair, err := h.service.Login(r.Context(), &input)
	if err != nil {
		stderrors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var input RefreshInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.RefreshToken == "" {
		stderrors.WriteHTTP(w, stderrors.NewValidationError("refreshToken is required"))
		return
	}

	pair, err := h.service.Refresh(r.Context(), &input)
	if err != nil {
		stderrors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var input LogoutInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.RefreshToken == "" {
		stderrors.WriteHTTP(w, stderrors.NewValidationError("refreshToken is required"))
		return
	}

	if err := h.service.Logout(r.Context(), &input); err != nil {
		stderrors.WriteHTTP(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	userID := commonauth.UserID(r.Context())
	if userID == "" {
		stderrors.WriteHTTP(w, stderrors.NewTokenInvalidError("missing identity"))
		return
	}

	out, err := h.service.EnrollTOTP(r.Context(), userID)
	if err != nil {
		stderrors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	userID := commonauth.UserID(r.Context())
	if userID == "" {
		stderrors.WriteHTTP(w, stderrors.NewTokenInvalidError("missing identity"))
		return
	}

	var input VerifyTOTPInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Code == "" {
		stderrors.WriteHTTP(w, stderrors.NewValidationError("code is required"))
		return
	}

	if err := h.service.VerifyTOTP(r.Context(), userID, &input); err != nil {
		stderrors.WriteHTTP(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func joinMessages(result *validation.ValidationResult) string {
	msgs := result.GetErrorMessages()
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += "; "
		}
		out += m
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
