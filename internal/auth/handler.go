package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/promanage/promanage/internal/gate"
	"github.com/promanage/promanage/internal/platform/httpx"
	"github.com/promanage/promanage/internal/token"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	codec         *token.Codec
	secureCookies bool
	validator     *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, codec *token.Codec, secureCookies bool) *Handler {
	return &Handler{
		logger:        logger,
		service:       service,
		codec:         codec,
		secureCookies: secureCookies,
		validator:     validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/reset-password", h.handleResetPassword)
	r.Get("/whoami", h.handleWhoami)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// Uniform response for unknown account, inactive account, and bad
		// password.
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}

	gate.SetAuthCookies(w, pair.Access, pair.Refresh, strconv.FormatInt(user.ID, 10),
		h.codec.AccessTTL(), h.codec.RefreshTTL(), h.secureCookies)

	resp := loginResponse{AccessToken: pair.Access, RefreshToken: pair.Refresh}
	resp.User.ID = user.ID
	resp.User.Email = user.Email
	resp.User.Name = user.Name
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := ""
	if cookie, err := r.Cookie(gate.CookieRefresh); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := httpx.DecodeJSON(r, &body); err == nil {
			refreshToken = body.RefreshToken
		}
	}
	if refreshToken == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	access, claims, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	gate.SetAuthCookies(w, access, "", claims.Subject,
		h.codec.AccessTTL(), h.codec.RefreshTTL(), h.secureCookies)
	httpx.JSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var accessClaims *token.Claims
	if raw := h.accessToken(r); raw != "" {
		if claims, ok := h.codec.VerifyAccess(raw); ok {
			accessClaims = claims
		}
	}
	refreshToken := ""
	if cookie, err := r.Cookie(gate.CookieRefresh); err == nil {
		refreshToken = cookie.Value
	}

	h.service.Logout(r.Context(), accessClaims, refreshToken)
	gate.ClearAuthCookies(w, h.secureCookies)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.logger.Error("forgot password", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "reset mail queued if the account exists"})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid or expired reset token")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// handleWhoami reports the identity behind the presented credential. The
// route is public; an absent or invalid credential yields an anonymous
// answer, not an error.
func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	raw := h.accessToken(r)
	if raw == "" {
		httpx.JSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	claims, ok := h.codec.VerifyAccess(raw)
	if !ok {
		httpx.JSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        claims.Subject,
		"role":          claims.Role,
	})
}

func (h *Handler) accessToken(r *http.Request) string {
	if cookie, err := r.Cookie(gate.CookieAccess); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
