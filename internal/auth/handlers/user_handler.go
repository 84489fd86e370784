package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apierr "github.com/akilapilapitiya/TrueGate-sub001/internal/auth"
	authmw "github.com/akilapilapitiya/TrueGate-sub001/internal/auth/middleware"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/models"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/service"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/store"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/httpx"
)

// UserHandler exposes the user-management endpoints.
type UserHandler struct {
	service *service.AuthService
	logger  *zap.Logger
}

func NewUserHandler(svc *service.AuthService, logger *zap.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// List returns a paginated page of users with optional search and role
// filters. Admin-only at the route layer.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("limit"))

	users, pagination, err := h.service.ListUsers(r.Context(), store.ListOptions{
		Page:    page,
		PerPage: perPage,
		Search:  q.Get("search"),
		Role:    models.Role(q.Get("role")),
	})
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"users":      users,
		"pagination": pagination,
	})
}

// Update applies profile fields to the addressed user. The typed decode is
// the allow-list: password, hashedPassword, email, and role in the body are
// silently dropped. Non-admin callers may only update themselves.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := authmw.Identity(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	email := store.NormalizeEmail(r.PathValue("email"))
	if identity.Role != models.RoleAdmin && store.NormalizeEmail(identity.Email) != email {
		httpx.Error(w, http.StatusForbidden, "Forbidden")
		return
	}

	var update models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), email, update)
	if err != nil {
		if errors.Is(err, apierr.ErrUserNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("update profile failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

// Delete removes a user. Admin-only at the route layer.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")

	err := h.service.DeleteUser(r.Context(), email, requestMeta(r))
	if err != nil {
		if errors.Is(err, apierr.ErrUserNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("delete user failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// Unlock clears a lockout. Admin-only at the route layer; lockout never
// expires on its own.
func (h *UserHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")

	err := h.service.UnlockUser(r.Context(), email, requestMeta(r))
	if err != nil {
		if errors.Is(err, apierr.ErrUserNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("unlock user failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Account unlocked"})
}
