package auth

import (
	"net/http"
	"strings"
	"time"
)

const DefaultCookieName = "admin_token"

// SessionCookie is the admin session cookie set on login and read by RequireAdmin.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

// Issue builds the cookie carrying token. It is scoped to the admin routes.
func (c SessionCookie) Issue(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/admin",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Token returns the admin token from the session cookie, else from a Bearer
// Authorization header. It returns "" when neither is present.
func (c SessionCookie) Token(r *http.Request) string {
	if cookie, err := r.Cookie(c.name()); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
