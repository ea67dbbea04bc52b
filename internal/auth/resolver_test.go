package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/model"
)

const otherUserID = "22222222-2222-2222-2222-222222222222"

func newTestResolver(idp identity.Client) (*Resolver, *TokenManager, *bytes.Buffer) {
	var buf bytes.Buffer
	tokens := NewTokenManager(testTokenSecret, 30*time.Minute)
	return NewResolver(idp, tokens, newTestLogger(&buf)), tokens, &buf
}

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/programs", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestResolver_NoCookies_Anonymous(t *testing.T) {
	idp := &mockIdentityClient{
		getUserFn: func(ctx context.Context, accessToken string) (*model.Identity, error) {
			t.Error("provider must not be called without an access token cookie")
			return nil, nil
		},
	}
	r, _, _ := newTestResolver(idp)

	got := r.Resolve(requestWithCookies())
	if !got.IsAnonymous() || got.Kind != model.SessionNone {
		t.Errorf("session = %+v, want anonymous", got)
	}
}

func TestResolver_ProviderSession(t *testing.T) {
	idp := &mockIdentityClient{
		getUserFn: func(ctx context.Context, accessToken string) (*model.Identity, error) {
			if accessToken != "access" {
				t.Errorf("access token = %q", accessToken)
			}
			return &model.Identity{ID: testUserID}, nil
		},
	}
	r, _, _ := newTestResolver(idp)

	got := r.Resolve(requestWithCookies(&http.Cookie{Name: identity.AccessTokenCookie, Value: "access"}))
	if got != model.ProviderSession(testUserID) {
		t.Errorf("session = %+v, want provider %s", got, testUserID)
	}
}

// TestResolver_ReusesVerifiedUser はルートガードが同じトークンで確認済みの場合に
// IdPへ問い合わせないことを検証する。
func TestResolver_ReusesVerifiedUser(t *testing.T) {
	var calls int
	idp := &mockIdentityClient{
		getUserFn: func(ctx context.Context, accessToken string) (*model.Identity, error) {
			calls++
			return &model.Identity{ID: otherUserID}, nil
		},
	}
	r, _, _ := newTestResolver(idp)

	req := requestWithCookies(&http.Cookie{Name: identity.AccessTokenCookie, Value: "access"})
	req = req.WithContext(identity.ContextWithVerifiedUser(req.Context(), "access", model.Identity{ID: testUserID}))
	if got := r.Resolve(req); got != model.ProviderSession(testUserID) {
		t.Errorf("session = %+v, want provider %s", got, testUserID)
	}
	if calls != 0 {
		t.Errorf("GetUser calls = %d, want 0", calls)
	}

	// トークンが異なる場合は再利用しない
	req = requestWithCookies(&http.Cookie{Name: identity.AccessTokenCookie, Value: "other"})
	req = req.WithContext(identity.ContextWithVerifiedUser(req.Context(), "access", model.Identity{ID: testUserID}))
	if got := r.Resolve(req); got != model.ProviderSession(otherUserID) {
		t.Errorf("session = %+v, want provider %s", got, otherUserID)
	}
	if calls != 1 {
		t.Errorf("GetUser calls = %d, want 1", calls)
	}
}

// TestResolver_ProviderTakesPriority はIdPセッションとフォールバックトークンの両方が
// 有効な場合にIdPセッションを採用することを検証する。
func TestResolver_ProviderTakesPriority(t *testing.T) {
	idp := &mockIdentityClient{
		getUserFn: func(ctx context.Context, accessToken string) (*model.Identity, error) {
			return &model.Identity{ID: testUserID}, nil
		},
	}
	r, tokens, _ := newTestResolver(idp)
	fallback, _, err := tokens.Sign(otherUserID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	got := r.Resolve(requestWithCookies(
		&http.Cookie{Name: identity.AccessTokenCookie, Value: "access"},
		&http.Cookie{Name: FallbackCookieName, Value: fallback},
	))
	if got != model.ProviderSession(testUserID) {
		t.Errorf("session = %+v, want provider %s", got, testUserID)
	}
}

func TestResolver_FallbackWhenProviderRejects(t *testing.T) {
	tests := []struct {
		name    string
		getUser func(ctx context.Context, accessToken string) (*model.Identity, error)
		wantLog bool
	}{
		{
			name: "expired provider session",
			getUser: func(ctx context.Context, accessToken string) (*model.Identity, error) {
				return nil, &identity.Error{Kind: identity.KindInvalidSession, Status: 401}
			},
		},
		{
			name: "provider unavailable",
			getUser: func(ctx context.Context, accessToken string) (*model.Identity, error) {
				return nil, &identity.Error{Kind: identity.KindUnavailable}
			},
			wantLog: true,
		},
		{
			name: "provider returns empty identity",
			getUser: func(ctx context.Context, accessToken string) (*model.Identity, error) {
				return &model.Identity{}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, tokens, logs := newTestResolver(&mockIdentityClient{getUserFn: tt.getUser})
			fallback, _, _ := tokens.Sign(otherUserID, model.RoleUser)

			got := r.Resolve(requestWithCookies(
				&http.Cookie{Name: identity.AccessTokenCookie, Value: "stale"},
				&http.Cookie{Name: FallbackCookieName, Value: fallback},
			))
			if got != model.FallbackSession(otherUserID) {
				t.Errorf("session = %+v, want fallback %s", got, otherUserID)
			}
			if hasLog := logs.Len() > 0; hasLog != tt.wantLog {
				t.Errorf("logged = %v, want %v: %s", hasLog, tt.wantLog, logs.String())
			}
		})
	}
}

// TestResolver_InvalidFallbackToken は改ざん・期限切れのトークンがCookieなしと
// 同じく匿名として扱われることを検証する。
func TestResolver_InvalidFallbackToken(t *testing.T) {
	r, tokens, _ := newTestResolver(&mockIdentityClient{})

	valid, _, _ := tokens.Sign(testUserID, model.RoleUser)
	expiredIssuer := NewTokenManager(testTokenSecret, time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, _ := expiredIssuer.Sign(testUserID, model.RoleUser)

	for name, value := range map[string]string{
		"tampered": valid + "x",
		"expired":  expired,
		"garbage":  "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			got := r.Resolve(requestWithCookies(&http.Cookie{Name: FallbackCookieName, Value: value}))
			if !got.IsAnonymous() {
				t.Errorf("session = %+v, want anonymous", got)
			}
		})
	}
}

func TestHasSessionCookie(t *testing.T) {
	if HasSessionCookie(requestWithCookies()) {
		t.Error("no cookies should report false")
	}
	if !HasSessionCookie(requestWithCookies(&http.Cookie{Name: identity.AccessTokenCookie, Value: "x"})) {
		t.Error("access token cookie should report true")
	}
	if !HasSessionCookie(requestWithCookies(&http.Cookie{Name: FallbackCookieName, Value: "x"})) {
		t.Error("fallback cookie should report true")
	}
}

func TestSetAndClearFallbackCookie(t *testing.T) {
	opts := identity.CookieOptions{Domain: "example.com", Secure: true}

	rec := httptest.NewRecorder()
	SetFallbackCookie(rec, "token", time.Now().Add(30*time.Minute), opts)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != FallbackCookieName || c.Value != "token" {
		t.Errorf("cookie = %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie attributes = %+v", c)
	}
	if c.MaxAge < 29*60 || c.MaxAge > 30*60 {
		t.Errorf("MaxAge = %d, want about 1800", c.MaxAge)
	}

	rec = httptest.NewRecorder()
	ClearFallbackCookie(rec, opts)
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Errorf("cleared cookie = %+v, want MaxAge < 0", cleared)
	}
}
