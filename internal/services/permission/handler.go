// internal/services/permission/handler.go
package permission

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	commonauth "platform-services/internal/common/auth"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/logger"
	"platform-services/internal/models"
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
	r.Post("/check", h.Check)
	r.Route("/roles", func(r chi.Router) {
		r.Use(h.requireRoleManage)
		r.Get("/", h.ListRoles)
		r.Post("/", h.CreateRole)
		r.Delete("/{name}", h.DeleteRole)
		r.Post("/{name}/grant", h.Grant)
		r.Post("/{name}/revoke", h.Revoke)
	})
	return r
}

// requireRoleManage gates the role administration endpoints.
func (h *Handler) requireRoleManage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID := commonauth.UserID(r.Context())
		allowed, err := h.service.Check(r.Context(), callerID, models.PermRoleManage)
		if err != nil {
			commonerrors.WriteHTTP(w, err)
			return
		}
		if !allowed {
			commonerrors.WriteHTTP(w, commonerrors.NewPermissionDeniedError(models.PermRoleManage))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type checkRequest struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
}

// Check answers a permission query. Callers may only ask about themselves
// unless they hold the role-management permission.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("invalid JSON body"))
		return
	}
	if req.Permission == "" {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("permission is required"))
		return
	}

	callerID := commonauth.UserID(r.Context())
	if req.UserID == "" {
		req.UserID = callerID
	}
	if req.UserID != callerID {
		manage, err := h.service.Check(r.Context(), callerID, models.PermRoleManage)
		if err != nil {
			commonerrors.WriteHTTP(w, err)
			return
		}
		if !manage {
			commonerrors.WriteHTTP(w, commonerrors.NewPermissionDeniedError(models.PermRoleManage))
			return
		}
	}

	allowed, err := h.service.Check(r.Context(), req.UserID, req.Permission)
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.PermissionCheck{
		UserID:     req.UserID,
		Permission: req.Permission,
		Allowed:    allowed,
	})
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

type createRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("invalid JSON body"))
		return
	}
	if req.Name == "" {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("name is required"))
		return
	}

	role, err := h.service.CreateRole(r.Context(), req.Name, req.Permissions)
	if err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "name")); err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("userId is required"))
		return
	}
	if err := h.service.Grant(r.Context(), req.UserID, chi.URLParam(r, "name")); err != nil {
		commonerrors.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		commonerrors.WriteHTTP(w, commonerrors.NewValidationError("userId is required"))
		return
	}
	if err := h.service.Revoke(r.Context(), req.UserID, chi.URLParam(r, "name")); err != nil {
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
