package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"plantstore-be/internal/auth"
	"plantstore-be/internal/logger"
	"plantstore-be/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLogging(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	defer logger.Replace(zap.New(core))()

	t.Run("Success", func(t *testing.T) {
		handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req = req.WithContext(logger.WithRequestID(req.Context(), "req-9"))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.InfoLevel, logs[0].Level)
		fields := logs[0].ContextMap()
		assert.Equal(t, int64(200), fields["status"])
		assert.Equal(t, int64(2), fields["bytes"])
		assert.Equal(t, "/health", fields["path"])
		assert.Equal(t, "req-9", fields["request_id"])
	})

	t.Run("ServerError", func(t *testing.T) {
		handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/payments/initiate", nil))

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
		assert.Equal(t, int64(502), logs[0].ContextMap()["status"])
	})

	t.Run("ClientError", func(t *testing.T) {
		handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payments/x", nil))

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	})
}

func TestMetrics(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/payments/{checkoutRequestId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/payments/{checkoutRequestId}", "404")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payments/ws_CO_1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payments/ws_CO_2", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestRequireAdmin(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	token, _, err := issuer.Generate("admin@plantstore.co.ke")
	require.NoError(t, err)

	var seen *auth.Claims
	guarded := RequireAdmin(issuer, auth.SessionCookie{Name: "plantstore_admin"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("Missing Token", func(t *testing.T) {
		w := httptest.NewRecorder()
		guarded.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/payments", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/payments", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		guarded.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Foreign Secret", func(t *testing.T) {
		other, _, err := auth.NewIssuer("other-secret", time.Hour).Generate("admin@plantstore.co.ke")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin/payments", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		w := httptest.NewRecorder()

		guarded.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Valid Bearer", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/admin/payments", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		guarded.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "admin@plantstore.co.ke", seen.Email)
	})

	t.Run("Valid Cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/payments", nil)
		req.AddCookie(&http.Cookie{Name: "plantstore_admin", Value: token})
		w := httptest.NewRecorder()

		guarded.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"http://localhost:3000/"})(okHandler())

	t.Run("OPTIONS request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/payments/initiate", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Normal request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("Strict tier", func(t *testing.T) {
		limiter := NewRateLimiter("")
		handler := limiter.Handler(okHandler())

		codes := make([]int, 0, burstStrict+1)
		for i := 0; i < burstStrict+1; i++ {
			req := httptest.NewRequest(http.MethodPost, "/payments/initiate", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}

		for _, c := range codes[:burstStrict] {
			assert.Equal(t, http.StatusOK, c)
		}
		assert.Equal(t, http.StatusTooManyRequests, codes[burstStrict])
	})

	t.Run("Separate identities", func(t *testing.T) {
		limiter := NewRateLimiter("")
		handler := limiter.Handler(okHandler())

		for i := 0; i < burstStrict; i++ {
			req := httptest.NewRequest(http.MethodPost, "/contact", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		req := httptest.NewRequest(http.MethodPost, "/contact", nil)
		req.RemoteAddr = "10.0.0.2:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Strict tier ignores device id", func(t *testing.T) {
		limiter := NewRateLimiter("")
		handler := limiter.Handler(okHandler())

		codes := make([]int, 0, burstStrict+1)
		for i := 0; i < burstStrict+1; i++ {
			req := httptest.NewRequest(http.MethodPost, "/payments/initiate", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			req.Header.Set("X-Device-ID", fmt.Sprintf("dev-%d", i))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}

		assert.Equal(t, http.StatusTooManyRequests, codes[burstStrict])
		assert.Contains(t, limiter.visitors, "ip:10.0.0.1:strict")
		assert.Len(t, limiter.visitors, 1)
	})

	t.Run("Callback exempt", func(t *testing.T) {
		limiter := NewRateLimiter("")
		handler := limiter.Handler(okHandler())

		for i := 0; i < burstGeneral*2; i++ {
			req := httptest.NewRequest(http.MethodPost, "/payments/callback", nil)
			req.RemoteAddr = "196.201.214.200:443"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
		}
		assert.Empty(t, limiter.visitors)
	})

	t.Run("Tier resolution", func(t *testing.T) {
		limiter := NewRateLimiter("svc-key")

		req := httptest.NewRequest(http.MethodGet, "/payments/ws_CO_1", nil)
		req.Header.Set("X-Service-Auth", "svc-key")
		_, _, tier := limiter.resolveRateTier(req)
		assert.Equal(t, "internal", tier)

		req = httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		_, _, tier = limiter.resolveRateTier(req)
		assert.Equal(t, "strict", tier)

		req = httptest.NewRequest(http.MethodGet, "/payments/ws_CO_1", nil)
		req.Header.Set("X-Client-Type", "frontend-heavy")
		_, _, tier = limiter.resolveRateTier(req)
		assert.Equal(t, "frontend", tier)

		req = httptest.NewRequest(http.MethodGet, "/payments/ws_CO_1", nil)
		_, _, tier = limiter.resolveRateTier(req)
		assert.Equal(t, "general", tier)
	})

	t.Run("Identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.7:1234"
		assert.Equal(t, "ip:10.0.0.7", identity(req))

		req.Header.Set("X-Device-ID", "dev-1")
		assert.Equal(t, "device:dev-1", identity(req))

		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{Email: "admin@plantstore.co.ke"}))
		assert.Equal(t, "admin:admin@plantstore.co.ke", identity(req))
	})

	t.Run("Cleanup", func(t *testing.T) {
		limiter := NewRateLimiter("")
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		limiter.now = func() time.Time { return now }

		limiter.getVisitor("ip:1:general", limitGeneral, burstGeneral)
		now = now.Add(2 * time.Minute)
		limiter.getVisitor("ip:2:general", limitGeneral, burstGeneral)
		now = now.Add(2 * time.Minute)

		assert.Equal(t, 1, limiter.cleanup())
		assert.Len(t, limiter.visitors, 1)
	})

	t.Run("Run stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			NewRateLimiter("").Run(ctx)
			close(done)
		}()

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})
}
