package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	apierr "github.com/akilapilapitiya/TrueGate-sub001/internal/auth"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/csrf"
	authmw "github.com/akilapilapitiya/TrueGate-sub001/internal/auth/middleware"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/models"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/service"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/httpx"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/middleware"
)

// AuthHandler exposes the credential-lifecycle endpoints.
type AuthHandler struct {
	service *service.AuthService
	guard   *csrf.Guard
	logger  *zap.Logger
}

func NewAuthHandler(svc *service.AuthService, guard *csrf.Guard, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: svc, guard: guard, logger: logger}
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	BirthDate string `json:"birthDate"`
	Gender    string `json:"gender"`
	Contact   string `json:"contact"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      models.PublicUser `json:"user"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// CSRFToken issues a fresh anti-forgery secret and sets the paired cookie.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	secret, err := h.guard.Issue(w)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": secret})
}

// Register creates a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BirthDate: req.BirthDate,
		Gender:    req.Gender,
		Contact:   req.Contact,
	}, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, apierr.ErrUserExists):
			httpx.Error(w, http.StatusBadRequest, "User already exists")
		case errors.Is(err, apierr.ErrMissingFields), service.IsValidationError(err):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("register failed", zap.Error(err))
			httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{"user": user})
}

// Login authenticates credentials and returns a bearer token. All failures
// share one generic 401.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		if errors.Is(err, apierr.ErrInvalidCredentials) || errors.Is(err, apierr.ErrAccountLocked) {
			httpx.Error(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.JSON(w, http.StatusOK, LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      result.User,
	})
}

// ForgotPassword always answers 200 so the response cannot be used to
// enumerate accounts.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email, requestMeta(r)); err != nil {
		h.logger.Error("forgot-password failed", zap.Error(err))
	}

	httpx.JSON(w, http.StatusOK, map[string]string{
		"message": "If the email exists, a reset link has been sent",
	})
}

// ResetPassword consumes a reset secret and sets the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, apierr.ErrSecretExpired), errors.Is(err, apierr.ErrSecretMismatch):
			httpx.Error(w, http.StatusBadRequest, "Invalid or expired reset token")
		case service.IsValidationError(err):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("reset-password failed", zap.Error(err))
			httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}

// VerifyEmail consumes a verification secret from the emailed link.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	verificationToken := r.URL.Query().Get("token")
	if email == "" || verificationToken == "" {
		httpx.Error(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}

	err := h.service.VerifyEmail(r.Context(), email, verificationToken, requestMeta(r))
	if err != nil {
		if errors.Is(err, apierr.ErrSecretExpired) || errors.Is(err, apierr.ErrSecretMismatch) {
			httpx.Error(w, http.StatusBadRequest, "Invalid or expired verification token")
			return
		}
		h.logger.Error("verify-email failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
}

// ResendVerification reissues the caller's verification secret.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	identity, ok := authmw.Identity(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.service.ResendVerification(r.Context(), identity.Email, requestMeta(r)); err != nil {
		if errors.Is(err, apierr.ErrUserNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("resend-verification failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Verification email sent"})
}

// ChangePassword requires the caller's current password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := authmw.Identity(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.service.ChangePassword(r.Context(), identity.Email, req.CurrentPassword, req.NewPassword, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, apierr.ErrPasswordMismatch):
			httpx.Error(w, http.StatusBadRequest, "Current password is incorrect")
		case service.IsValidationError(err):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("change-password failed", zap.Error(err))
			httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}
