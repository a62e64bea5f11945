package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"loginway/internal/auth"
)

type loginService interface {
	LoginWithGoogle(ctx context.Context, rawIDToken, platform string, client auth.ClientInfo) (*auth.Login, error)
	LoginWithApple(ctx context.Context, rawIDToken string, client auth.ClientInfo) (*auth.Login, error)
	LoginWithPassword(ctx context.Context, email, password string, client auth.ClientInfo) (*auth.Login, error)
	SignUp(ctx context.Context, email, password, displayName string, client auth.ClientInfo) (*auth.Login, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler exposes the login, signup, whoami and logout endpoints.
type AuthHandler struct {
	service loginService
	binder  *Binder
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(service loginService, binder *Binder, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, binder: binder, logger: logger}
}

type tokenLoginRequest struct {
	IDToken  string `json:"idToken"`
	Platform string `json:"platform,omitempty"`
}

func (r tokenLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDToken, validation.Required),
		validation.Field(&r.Platform, validation.Length(0, 16)),
	)
}

func (r *tokenLoginRequest) missing() bool {
	return strings.TrimSpace(r.IDToken) == ""
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r passwordLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (r *passwordLoginRequest) missing() bool {
	return strings.TrimSpace(r.Email) == "" || r.Password == ""
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

func (r signupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&r.DisplayName, validation.Length(0, 200)),
	)
}

func (r *signupRequest) missing() bool {
	return strings.TrimSpace(r.Email) == "" || r.Password == ""
}

type userResponse struct {
	ID          uuid.UUID     `json:"id"`
	Provider    auth.Provider `json:"provider"`
	Email       string        `json:"email,omitempty"`
	DisplayName string        `json:"displayName,omitempty"`
}

type loginResponse struct {
	OK           bool         `json:"ok"`
	SessionToken string       `json:"sessionToken,omitempty"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         userResponse `json:"user"`
}

// Google handles POST /auth/google.
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var payload tokenLoginRequest
	if !h.decodeAndValidate(w, r, &payload, payload.missing) {
		return
	}
	login, err := h.service.LoginWithGoogle(r.Context(), payload.IDToken, payload.Platform, clientInfo(r))
	h.finishLogin(w, login, err)
}

// Apple handles POST /auth/apple.
func (h *AuthHandler) Apple(w http.ResponseWriter, r *http.Request) {
	var payload tokenLoginRequest
	if !h.decodeAndValidate(w, r, &payload, payload.missing) {
		return
	}
	login, err := h.service.LoginWithApple(r.Context(), payload.IDToken, clientInfo(r))
	h.finishLogin(w, login, err)
}

// PasswordLogin handles POST /auth/password/login.
func (h *AuthHandler) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	var payload passwordLoginRequest
	if !h.decodeAndValidate(w, r, &payload, payload.missing) {
		return
	}
	login, err := h.service.LoginWithPassword(r.Context(), payload.Email, payload.Password, clientInfo(r))
	h.finishLogin(w, login, err)
}

// SignUp handles POST /auth/password/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var payload signupRequest
	if !h.decodeAndValidate(w, r, &payload, payload.missing) {
		return
	}
	login, err := h.service.SignUp(r.Context(), payload.Email, payload.Password, strings.TrimSpace(payload.DisplayName), clientInfo(r))
	h.finishLogin(w, login, err)
}

// WhoAmI handles GET /auth/whoami. It must run behind RequireSession.
func (h *AuthHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		unauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": identity})
}

// Logout handles POST /auth/logout. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, carrier := h.binder.Extract(r)
	if token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			h.logger.Error("logout failed", "carrier", carrier, "error", err)
		}
	}
	h.binder.Clear(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// decodeAndValidate reads the JSON body into dst and validates it. An empty
// body is treated as an empty payload. Blank required fields are reported as
// missing credentials. missing is evaluated after decoding.
func (h *AuthHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst validation.Validatable, missing func() bool) bool {
	if err := decodeJSONBody(w, r, dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, err)
		return false
	}
	if err := dst.Validate(); err != nil {
		if missing() {
			writeAuthError(w, auth.ErrMissingCredential, h.logger)
			return false
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return false
	}
	return true
}

func (h *AuthHandler) finishLogin(w http.ResponseWriter, login *auth.Login, err error) {
	if err != nil {
		writeAuthError(w, err, h.logger)
		return
	}

	token := h.binder.Attach(w, login.Token, login.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		OK:           true,
		SessionToken: token,
		ExpiresAt:    login.ExpiresAt,
		User: userResponse{
			ID:          login.User.ID,
			Provider:    login.User.Provider,
			Email:       login.User.Email,
			DisplayName: login.User.DisplayName,
		},
	})
}

func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		UserAgent: r.UserAgent(),
		IPAddress: clientIPFromRequest(r),
	}
}
