package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loginway/internal/auth"
)

// oauthStatePayload holds the CSRF state and optional redirect path.
type oauthStatePayload struct {
	State      string `json:"s"`
	RedirectTo string `json:"r,omitempty"`
}

// isValidRedirectPath validates that a path is a safe relative redirect.
// It prevents open redirect attacks by ensuring the path:
// - Starts with a single "/" (not "//")
// - Has no scheme or host component
// - Cannot be bypassed via URL encoding
func isValidRedirectPath(path string) bool {
	if path == "" {
		return false
	}

	// Decode to catch encoded bypass attempts like /%2f%2f
	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}

	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") || strings.Contains(decoded, "\\") {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}
	return parsed.Scheme == "" && parsed.Host == ""
}

const (
	oauthStateCookieName = "loginway_oauth_state"
	oauthStateCookiePath = "/auth/google"
	oauthStateCookieTTL  = 10 * time.Minute
)

type googleWebFlow interface {
	WebFlowEnabled() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

type googleLogin interface {
	LoginWithGoogle(ctx context.Context, rawIDToken, platform string, client auth.ClientInfo) (*auth.Login, error)
}

// OAuthHandler drives the browser redirect flow for Google sign-in.
type OAuthHandler struct {
	google       googleWebFlow
	service      googleLogin
	binder       *Binder
	logger       *slog.Logger
	secureCookie bool
	frontendURL  string
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(google googleWebFlow, service googleLogin, binder *Binder, frontendURL string, secureCookie bool, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		google:       google,
		service:      service,
		binder:       binder,
		logger:       logger,
		secureCookie: secureCookie,
		frontendURL:  strings.TrimSuffix(frontendURL, "/"),
	}
}

// Start handles GET /auth/google/start and redirects to Google's consent screen.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.google.WebFlowEnabled() {
		writeAuthError(w, auth.ErrMissingAudience, h.logger)
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "unexpected error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     oauthStateCookiePath,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthStateCookieTTL.Seconds()),
	})

	payload := oauthStatePayload{State: state}
	if redirectTo := r.URL.Query().Get("redirectTo"); isValidRedirectPath(redirectTo) {
		payload.RedirectTo = redirectTo
	}

	// base64 JSON avoids delimiter issues in the state parameter.
	stateJSON, _ := json.Marshal(payload)
	fullState := base64.RawURLEncoding.EncodeToString(stateJSON)

	http.Redirect(w, r, h.google.AuthURL(fullState), http.StatusTemporaryRedirect)
}

// Callback handles GET /auth/google/callback. It checks state, exchanges the
// code, logs the user in and redirects back to the frontend.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil {
		h.logger.Warn("oauth callback: missing state cookie")
		h.redirectWithError(w, r, "invalid_request", "Session expired. Please try again.")
		return
	}

	stateBytes, err := base64.RawURLEncoding.DecodeString(r.URL.Query().Get("state"))
	if err != nil {
		h.logger.Warn("oauth callback: invalid state encoding")
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.")
		return
	}

	var statePayload oauthStatePayload
	if err := json.Unmarshal(stateBytes, &statePayload); err != nil {
		h.logger.Warn("oauth callback: invalid state JSON")
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.")
		return
	}

	if subtle.ConstantTimeCompare([]byte(statePayload.State), []byte(stateCookie.Value)) != 1 {
		h.logger.Warn("oauth callback: state mismatch")
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.")
		return
	}

	redirectTo := "/"
	if isValidRedirectPath(statePayload.RedirectTo) {
		redirectTo = statePayload.RedirectTo
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     oauthStateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Warn("oauth callback: provider error", "error", errParam)
		h.redirectWithError(w, r, errParam, r.URL.Query().Get("error_description"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "invalid_request", "Missing authorization code.")
		return
	}

	rawIDToken, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed", "error", err)
		h.redirectWithError(w, r, "exchange_error", "Failed to complete authentication.")
		return
	}

	login, err := h.service.LoginWithGoogle(r.Context(), rawIDToken, auth.PlatformWeb, clientInfo(r))
	if err != nil {
		h.logger.Warn("oauth callback: login failed", "error", err)
		h.redirectWithError(w, r, codeInvalidToken, "Google sign-in failed.")
		return
	}

	target := h.frontendURL + redirectTo
	token := h.binder.Attach(w, login.Token, login.ExpiresAt)
	if h.binder.Mode() == DeliverBody {
		// No cookie in body-only mode: hand the token over in the fragment.
		target += "#" + url.Values{sessionBodyField: {token}}.Encode()
	}

	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code, message string) {
	target := h.frontendURL + "/login?error=" + url.QueryEscape(code)
	if message != "" {
		target += "&message=" + url.QueryEscape(message)
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
