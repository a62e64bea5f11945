package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"loginway/internal/auth"
)

// Machine-readable error codes returned in the error envelope.
const (
	codeMissingCredential   = "missing_credential"
	codeInvalidCredentials  = "invalid_credentials"
	codeInvalidToken        = "invalid_token"
	codeVerificationTimeout = "verification_timeout"
	codeMisconfigured       = "server_misconfigured"
	codeEmailExists         = "email_exists"
	codeUnauthenticated     = "unauthenticated"
	codePayloadTooLarge     = "payload_too_large"
	codeInvalidRequest      = "invalid_request"
	codeInternal            = "internal_error"
)

type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{OK: false, Error: code, Message: message})
}

// writeAuthError maps auth failures onto the error envelope. Unknown accounts
// and wrong passwords produce the same response.
func writeAuthError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		writeError(w, http.StatusBadRequest, codeMissingCredential, "credential is required")
	case auth.IsCredentialFailure(err):
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
	case errors.Is(err, auth.ErrVerificationTimeout):
		writeError(w, http.StatusUnauthorized, codeVerificationTimeout, "identity provider did not respond in time")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrNoPayload):
		writeError(w, http.StatusUnauthorized, codeInvalidToken, "token verification failed")
	case errors.Is(err, auth.ErrMissingAudience):
		writeError(w, http.StatusInternalServerError, codeMisconfigured, "sign-in is not configured for this client")
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, codeEmailExists, "an account with this email already exists")
	case errors.Is(err, auth.ErrUnauthenticated):
		unauthorized(w)
	default:
		logger.Error("unhandled auth error", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "unexpected error")
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
}

const maxJSONBodyBytes int64 = 64 << 10

var errPayloadTooLarge = errors.New("payload too large")

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	limited := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = limited.Close()
	}()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "payload too large")
		return
	}
	// Generic message so JSON parsing details do not leak.
	writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
}
