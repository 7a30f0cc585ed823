package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/ssogate/internal/auth"
	"github.com/hitoshi/ssogate/internal/middleware"
	"github.com/hitoshi/ssogate/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// newTestRouter は全ルートをモックで構成したルーターを返す。
func newTestRouter(t *testing.T, reg *mockRegistry, keys *mockAPIKeyService, db Pinger) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		LoginRate:       1,
		LoginBurst:      2,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		TokenVerifier:     staticVerifier(),
		APIKeyVerifier:    keys,
		Gatherer:          prometheus.NewRegistry(),
		DB:                db,
		AuthService: &mockAuthService{
			loginFn: func(ctx context.Context, email, password string) (*auth.Session, error) {
				return aliceSession(), nil
			},
			meFn: func(ctx context.Context, identityID string) (*model.Identity, error) {
				return aliceIdentity(), nil
			},
		},
		Registry:      reg,
		APIKeyService: keys,
	})
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want int
	}{
		{"up", &mockPinger{}, http.StatusOK},
		{"down", &mockPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &mockRegistry{}, &mockAPIKeyService{}, tt.db)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRouter_ProtectedRoutesRequireBearer(t *testing.T) {
	router := newTestRouter(t, &mockRegistry{}, &mockAPIKeyService{}, &mockPinger{})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/auth/logout"},
		{http.MethodPut, "/auth/profile"},
		{http.MethodGet, "/users"},
		{http.MethodPut, "/users/u-1/role?role=admin"},
		{http.MethodGet, "/applications"},
		{http.MethodPost, "/applications"},
		{http.MethodDelete, "/applications/app-1"},
		{http.MethodPost, "/applications/app-1/block"},
		{http.MethodGet, "/applications/app-1/api-keys"},
		{http.MethodGet, "/keys"},
		{http.MethodDelete, "/keys/k-1"},
		{http.MethodGet, "/user/email/alice@example.edu/apps"},
		{http.MethodPost, "/user/apps/app-1/remove"},
		{http.MethodGet, "/admin/removals"},
		{http.MethodPost, "/map"},
		{http.MethodPost, "/unmap"},
	}

	for _, rt := range routes {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want %d", rt.method, rt.path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestRouter_ExpiredTokenReportsTokenExpired(t *testing.T) {
	router := newTestRouter(t, &mockRegistry{}, &mockAPIKeyService{}, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeBody[middleware.ErrorResponseBody](t, w); body.Code != model.ErrCodeTokenExpired {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeTokenExpired)
	}
}

func TestRouter_BearerRouteReachesHandler(t *testing.T) {
	router := newTestRouter(t, &mockRegistry{}, &mockAPIKeyService{}, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer member-token")
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("missing CORS header")
	}
	if w.Header().Get("X-Frame-Options") == "" {
		t.Error("missing security headers")
	}
}

func TestRouter_ApplicationRouteUsesURLParam(t *testing.T) {
	reg := &mockRegistry{
		getApplicationFn: func(ctx context.Context, actor *model.Principal, id string) (*model.Application, error) {
			if id != "33333333-3333-3333-3333-333333333333" {
				t.Errorf("id = %q", id)
			}
			return portalApplication(), nil
		},
	}
	router := newTestRouter(t, reg, &mockAPIKeyService{}, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/applications/33333333-3333-3333-3333-333333333333", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_LoginIsRateLimitedPerIP(t *testing.T) {
	router := newTestRouter(t, &mockRegistry{}, &mockAPIKeyService{}, &mockPinger{})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"alice@example.edu","password":"pw"}`))
		req.RemoteAddr = "203.0.113.9:40000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("request %d: status = %d, want %d", i, statuses[i], want[i])
		}
	}
}

func TestRouter_SDKRequiresAPIKey(t *testing.T) {
	keys := &mockAPIKeyService{
		verifyFn: func(ctx context.Context, plaintext string) (*model.APIKey, error) {
			if plaintext == "sso_live_good" {
				return &model.APIKey{ID: "key-1", Scope: portalScope}, nil
			}
			return nil, model.NewAuthenticationError("Invalid API key")
		},
	}
	reg := &mockRegistry{
		checkAccessFn: func(ctx context.Context, applicationID, email string) error {
			return nil
		},
	}
	router := newTestRouter(t, reg, keys, &mockPinger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sdk/verify?token=member-token", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/sdk/verify?token=member-token", nil)
	req.Header.Set(middleware.APIKeyHeader, "sso_live_good")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("with key: status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decodeBody[sdkVerifyResponse](t, w); !resp.Valid {
		t.Errorf("response = %+v", resp)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockRegistry{}, &mockAPIKeyService{}, &mockPinger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
