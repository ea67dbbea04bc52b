package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/mentorhub/internal/auth"
	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/model"
)

func newTestRouteGuard(idp SessionRefresher) (*RouteGuard, *guardMetrics, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := &guardMetrics{}
	g := NewRouteGuard(idp, RouteGuardConfig{
		ProtectedPrefixes: []string{"/programs", "/dashboard", "/admin/"},
	}, m, logger)
	return g, m, &buf
}

func TestRouteGuard_IsProtected(t *testing.T) {
	g, _, _ := newTestRouteGuard(&mockRefresher{})

	tests := map[string]bool{
		"/programs":           true,
		"/programs/abc":       true,
		"/dashboard":          true,
		"/admin":              true,
		"/admin/users":        true,
		"/":                   false,
		"/login":              false,
		"/programsandmore":    false,
		"/administrator":      false,
		"/auth/me":            false,
		"/metrics":            false,
		"/dashboard/progress": true,
	}
	for path, want := range tests {
		if got := g.IsProtected(path); got != want {
			t.Errorf("IsProtected(%q) = %v, want %v", path, got, want)
		}
	}
}

// TestRouteGuard_RedirectsProtectedPathWithoutCookies はセッションCookieのない保護パスへの
// リクエストがハンドラーに到達する前にログイン画面へ誘導されることを検証する。
func TestRouteGuard_RedirectsProtectedPathWithoutCookies(t *testing.T) {
	g, m, _ := newTestRouteGuard(&mockRefresher{})
	handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	for _, path := range []string{"/admin/users", "/programs", "/dashboard"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusSeeOther {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusSeeOther)
		}
		if loc := w.Header().Get("Location"); loc != auth.LoginPath {
			t.Errorf("%s: Location = %q, want %q", path, loc, auth.LoginPath)
		}
	}
	if m.redirects != 3 {
		t.Errorf("redirect metric = %d, want 3", m.redirects)
	}
}

func TestRouteGuard_PassesWithSessionCookie(t *testing.T) {
	g, m, _ := newTestRouteGuard(&mockRefresher{})

	for _, cookie := range []*http.Cookie{
		{Name: identity.AccessTokenCookie, Value: "access"},
		{Name: auth.FallbackCookieName, Value: "token"},
	} {
		handlerCalled := false
		handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}))

		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req.AddCookie(cookie)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if !handlerCalled {
			t.Errorf("cookie %s: handler should have been called", cookie.Name)
		}
	}
	if m.redirects != 0 {
		t.Errorf("redirect metric = %d, want 0", m.redirects)
	}
}

func TestRouteGuard_UnprotectedPathPassesWithoutCookies(t *testing.T) {
	g, _, _ := newTestRouteGuard(&mockRefresher{})
	handlerCalled := false
	handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/login", nil))

	if !handlerCalled {
		t.Error("handler should have been called for unprotected path")
	}
}

// TestRouteGuard_RefreshesExpiredProviderSession はアクセストークンが失効している場合に
// リフレッシュトークンで更新し、レスポンスと処理中のリクエストの両方に反映することを検証する。
func TestRouteGuard_RefreshesExpiredProviderSession(t *testing.T) {
	tests := []struct {
		name   string
		access string
	}{
		{"access cookie missing", ""},
		{"access token expired", "expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idp := &mockRefresher{
				getUserFn: func(ctx context.Context, accessToken string) (*model.Identity, error) {
					return nil, &identity.Error{Kind: identity.KindInvalidSession, Status: 401}
				},
				refreshFn: func(ctx context.Context, refreshToken string) (*identity.Session, error) {
					if refreshToken != "rt-1" {
						t.Errorf("refresh token = %q, want rt-1", refreshToken)
					}
					return &identity.Session{
						AccessToken:  "fresh",
						RefreshToken: "rt-2",
						ExpiresAt:    time.Now().Add(time.Hour),
						User:         model.Identity{ID: "user-1"},
					}, nil
				},
			}
			g, m, _ := newTestRouteGuard(idp)

			var seen identity.Tokens
			var verified model.Identity
			var verifiedOK bool
			handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = identity.TokensFromRequest(r)
				verified, verifiedOK = identity.VerifiedUserFromContext(r.Context(), seen.AccessToken)
			}))

			req := httptest.NewRequest(http.MethodGet, "/programs", nil)
			if tt.access != "" {
				req.AddCookie(&http.Cookie{Name: identity.AccessTokenCookie, Value: tt.access})
			}
			req.AddCookie(&http.Cookie{Name: identity.RefreshTokenCookie, Value: "rt-1"})
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if seen.AccessToken != "fresh" || seen.RefreshToken != "rt-2" {
				t.Errorf("handler saw tokens %+v, want refreshed", seen)
			}
			written := map[string]string{}
			for _, c := range w.Result().Cookies() {
				written[c.Name] = c.Value
			}
			if written[identity.AccessTokenCookie] != "fresh" || written[identity.RefreshTokenCookie] != "rt-2" {
				t.Errorf("response cookies = %v", written)
			}
			if m.refreshOK != 1 {
				t.Errorf("refresh success metric = %d, want 1", m.refreshOK)
			}
			if !verifiedOK || verified.ID != "user-1" {
				t.Errorf("refreshed identity should be passed on, got %+v (ok=%v)", verified, verifiedOK)
			}
		})
	}
}

func TestRouteGuard_ValidAccessTokenSkipsRefresh(t *testing.T) {
	idp := &mockRefresher{
		refreshFn: func(ctx context.Context, refreshToken string) (*identity.Session, error) {
			t.Error("refresh must not run while the access token is valid")
			return nil, nil
		},
	}
	g, _, _ := newTestRouteGuard(idp)
	handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/programs", nil)
	req.AddCookie(&http.Cookie{Name: identity.AccessTokenCookie, Value: "valid"})
	req.AddCookie(&http.Cookie{Name: identity.RefreshTokenCookie, Value: "rt-1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Errorf("no cookies should be written, got %v", w.Result().Cookies())
	}
}

// TestRouteGuard_PassesVerifiedUserToNextHandler はルートガードが確認したアカウントを
// 後段へ渡し、IdPへの問い合わせが1回で済むことを検証する。
func TestRouteGuard_PassesVerifiedUserToNextHandler(t *testing.T) {
	var calls int
	idp := &mockRefresher{
		getUserFn: func(ctx context.Context, accessToken string) (*model.Identity, error) {
			calls++
			return &model.Identity{ID: "user-1"}, nil
		},
	}
	g, _, _ := newTestRouteGuard(idp)

	var verified model.Identity
	var ok bool
	handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verified, ok = identity.VerifiedUserFromContext(r.Context(), "valid")
	}))

	req := httptest.NewRequest(http.MethodGet, "/programs", nil)
	req.AddCookie(&http.Cookie{Name: identity.AccessTokenCookie, Value: "valid"})
	req.AddCookie(&http.Cookie{Name: identity.RefreshTokenCookie, Value: "rt-1"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if calls != 1 {
		t.Errorf("GetUser calls = %d, want 1", calls)
	}
	if !ok || verified.ID != "user-1" {
		t.Errorf("verified identity = %+v (ok=%v), want user-1", verified, ok)
	}
}

// TestRouteGuard_RevokedRefreshTokenClearsCookies は失効したリフレッシュトークンを削除し
// 保護パスではログイン画面へ誘導することを検証する。
func TestRouteGuard_RevokedRefreshTokenClearsCookies(t *testing.T) {
	g, m, _ := newTestRouteGuard(&mockRefresher{})
	handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: identity.RefreshTokenCookie, Value: "revoked"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s should be cleared, MaxAge = %d", c.Name, c.MaxAge)
		}
	}
	if m.refreshBad != 1 {
		t.Errorf("refresh failure metric = %d, want 1", m.refreshBad)
	}
}

// TestRouteGuard_FailsOpenOnInternalFailure はガード内部のエラーやpanicで
// リクエストを変更せずに通すことを検証する。
func TestRouteGuard_FailsOpenOnInternalFailure(t *testing.T) {
	tests := []struct {
		name string
		idp  *mockRefresher
	}{
		{
			name: "provider unavailable",
			idp: &mockRefresher{
				refreshFn: func(ctx context.Context, refreshToken string) (*identity.Session, error) {
					return nil, &identity.Error{Kind: identity.KindUnavailable, Err: errors.New("dial tcp: connection refused")}
				},
			},
		},
		{
			name: "panic while checking session",
			idp: &mockRefresher{
				getUserFn: func(ctx context.Context, accessToken string) (*model.Identity, error) {
					panic("nil pointer in identity client")
				},
			},
		},
		{
			name: "panic while refreshing",
			idp: &mockRefresher{
				refreshFn: func(ctx context.Context, refreshToken string) (*identity.Session, error) {
					panic("unexpected response")
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, m, logs := newTestRouteGuard(tt.idp)

			handlerCalled := false
			handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				if identity.TokensFromRequest(r).RefreshToken != "rt-1" {
					t.Error("request cookies must be passed through unchanged")
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
			if strings.Contains(tt.name, "checking") {
				req.AddCookie(&http.Cookie{Name: identity.AccessTokenCookie, Value: "access"})
			}
			req.AddCookie(&http.Cookie{Name: identity.RefreshTokenCookie, Value: "rt-1"})
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !handlerCalled || w.Code != http.StatusOK {
				t.Fatalf("request should pass through, status = %d", w.Code)
			}
			if m.failOpens != 1 {
				t.Errorf("fail-open metric = %d, want 1", m.failOpens)
			}
			if !strings.Contains(logs.String(), "route_guard_fail_open") || !strings.Contains(logs.String(), `"level":"WARN"`) {
				t.Errorf("expected WARN fail-open log, got %s", logs.String())
			}
		})
	}
}
