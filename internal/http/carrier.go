package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// Carrier names, in extraction precedence order.
const (
	CarrierCookie = "cookie"
	CarrierHeader = "header"
	CarrierQuery  = "query"
	CarrierBody   = "body"
)

const (
	sessionHeaderName = "X-Session-Token"
	sessionQueryParam = "sessionToken"
	sessionBodyField  = "sessionToken"
	maxCarrierBody    = 64 << 10
)

// DeliveryMode selects how a new session token is handed to the client.
type DeliveryMode string

const (
	DeliverCookie DeliveryMode = "cookie"
	DeliverBody   DeliveryMode = "body"
	DeliverBoth   DeliveryMode = "both"
)

// TokenExtractor pulls a candidate session token from one carrier. It returns
// "" when the carrier is absent.
type TokenExtractor struct {
	Carrier string
	Extract func(r *http.Request) string
}

// DefaultExtractors returns the cookie, header, query and body extractors in
// that order.
func DefaultExtractors(cookieName string) []TokenExtractor {
	return []TokenExtractor{
		{Carrier: CarrierCookie, Extract: cookieExtractor(cookieName)},
		{Carrier: CarrierHeader, Extract: headerToken},
		{Carrier: CarrierQuery, Extract: queryToken},
		{Carrier: CarrierBody, Extract: bodyToken},
	}
}

func cookieExtractor(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(cookie.Value)
	}
}

// headerToken reads X-Session-Token, falling back to an Authorization bearer token.
func headerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(sessionHeaderName)); token != "" {
		return token
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > len("Bearer ") && strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return ""
}

func queryToken(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get(sessionQueryParam))
}

// bodyToken looks for a sessionToken field in a JSON body. The body is
// restored so handlers can still read it.
func bodyToken(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "json") {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxCarrierBody+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 || len(data) > maxCarrierBody {
		return ""
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	raw, ok := payload[sessionBodyField]
	if !ok {
		return ""
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return ""
	}
	return strings.TrimSpace(token)
}

// CookiePolicy describes the session cookie.
type CookiePolicy struct {
	Name   string
	Domain string
	Secure bool
}

// Binder moves session tokens across the HTTP boundary: it attaches new
// tokens to responses and extracts presented tokens from requests.
type Binder struct {
	cookie     CookiePolicy
	mode       DeliveryMode
	extractors []TokenExtractor
	now        func() time.Time
}

// NewBinder creates a Binder using the default extractors.
func NewBinder(cookie CookiePolicy, mode DeliveryMode) *Binder {
	if cookie.Name == "" {
		cookie.Name = "session"
	}
	switch mode {
	case DeliverCookie, DeliverBody, DeliverBoth:
	default:
		mode = DeliverBoth
	}
	return &Binder{
		cookie:     cookie,
		mode:       mode,
		extractors: DefaultExtractors(cookie.Name),
		now:        time.Now,
	}
}

// Mode reports the delivery mode.
func (b *Binder) Mode() DeliveryMode {
	return b.mode
}

// Attach hands token to the client. It sets the session cookie when cookie
// delivery is enabled and returns the token to embed in the response body,
// or "" when body delivery is disabled.
func (b *Binder) Attach(w http.ResponseWriter, token string, expiresAt time.Time) string {
	if b.mode == DeliverCookie || b.mode == DeliverBoth {
		maxAge := int(expiresAt.Sub(b.now()).Seconds())
		if maxAge < 1 {
			maxAge = 1
		}
		cookie := b.sessionCookie(token)
		cookie.MaxAge = maxAge
		cookie.Expires = expiresAt.UTC()
		http.SetCookie(w, cookie)
	}
	if b.mode == DeliverBody || b.mode == DeliverBoth {
		return token
	}
	return ""
}

// Clear expires the session cookie on the client.
func (b *Binder) Clear(w http.ResponseWriter) {
	cookie := b.sessionCookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

// Extract returns the first token found, trying carriers in precedence
// order, along with the carrier it came from.
func (b *Binder) Extract(r *http.Request) (token, carrier string) {
	for _, e := range b.extractors {
		if value := e.Extract(r); value != "" {
			return value, e.Carrier
		}
	}
	return "", ""
}

// sessionCookie builds the cookie skeleton. SameSite=None lets the cookie
// travel between sibling subdomains; browsers require Secure with it, so
// insecure development cookies fall back to Lax.
func (b *Binder) sessionCookie(value string) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if !b.cookie.Secure {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     b.cookie.Name,
		Value:    value,
		Path:     "/",
		Domain:   b.cookie.Domain,
		HttpOnly: true,
		Secure:   b.cookie.Secure,
		SameSite: sameSite,
	}
}
