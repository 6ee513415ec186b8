package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionCookie_Token(t *testing.T) {
	session := SessionCookie{Name: "plantstore_admin"}

	tests := []struct {
		name   string
		cookie *http.Cookie
		header string
		want   string
	}{
		{"Cookie wins over header", &http.Cookie{Name: "plantstore_admin", Value: "from-cookie"}, "Bearer from-header", "from-cookie"},
		{"Bearer header", nil, "Bearer from-header", "from-header"},
		{"Lowercase scheme", nil, "bearer  from-header ", "from-header"},
		{"Empty cookie uses header", &http.Cookie{Name: "plantstore_admin", Value: ""}, "Bearer from-header", "from-header"},
		{"Other cookie name ignored", &http.Cookie{Name: DefaultCookieName, Value: "stale"}, "", ""},
		{"Basic auth ignored", nil, "Basic dXNlcjpwYXNz", ""},
		{"Nothing", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/payments", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, session.Token(req))
		})
	}
}

func TestSessionCookie_Issue(t *testing.T) {
	expires := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	c := SessionCookie{Secure: true}.Issue("tok", expires)
	assert.Equal(t, DefaultCookieName, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, "/admin", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.True(t, expires.Equal(c.Expires))

	c = SessionCookie{Name: "plantstore_admin"}.Issue("tok", expires)
	assert.Equal(t, "plantstore_admin", c.Name)
	assert.False(t, c.Secure)
}
