package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"loginway/internal/auth"
	"loginway/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type validatorStub struct {
	validate func(ctx context.Context, rawIDToken, audience string) (*auth.GoogleClaims, error)
}

func (s *validatorStub) Validate(ctx context.Context, rawIDToken, audience string) (*auth.GoogleClaims, error) {
	return s.validate(ctx, rawIDToken, audience)
}

// googleTokens accepts "<sub>|<aud>" tokens and echoes the audience back in
// the claims, so tests can forge a token for any audience.
var googleTokens = &validatorStub{validate: func(ctx context.Context, rawIDToken, audience string) (*auth.GoogleClaims, error) {
	sub, aud, ok := strings.Cut(rawIDToken, "|")
	if !ok {
		return nil, errors.New("malformed test token")
	}
	return &auth.GoogleClaims{
		Sub:      sub,
		Audience: []string{aud},
		Email:    sub + "@gmail.example",
		Name:     "Google " + sub,
	}, nil
}}

func testConfig() config.Config {
	return config.Config{
		Environment:       "development",
		AllowedOrigins:    []string{"http://localhost:3000"},
		SessionCookieName: "session",
		CookieSecure:      true,
		SessionTTL:        time.Hour,
		SessionDelivery:   config.DeliveryBoth,
		FrontendURL:       "http://frontend.test",
	}
}

type testApp struct {
	handler http.Handler
	service *auth.Service
}

func newTestApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()
	repo := auth.NewInMemoryRepository()
	sessions := auth.NewSessionStore(repo, cfg.SessionTTL)
	google := auth.NewGoogleVerifier(googleTokens, auth.GoogleConfig{
		IOSClientID: "ios-client",
		WebClientID: "web-client",
	})

	svc, err := auth.NewService(auth.NewRegistry(repo), sessions, auth.NewBcryptHasher(bcrypt.MinCost),
		auth.WithGoogle(google),
		auth.WithApple(auth.NewUnverifiedAppleVerifier()),
	)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	handler := NewRouter(cfg, RouterDeps{
		Service: svc,
		Google:  google,
		Logger:  discardLogger(),
	})
	return &testApp{handler: handler, service: svc}
}

func (a *testApp) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return a.do(t, req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
