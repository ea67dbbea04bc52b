package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/hitoshi/mentorhub/internal/auth"
	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/metrics"
	"github.com/hitoshi/mentorhub/internal/model"
)

// --- モック定義 ---

type mockResolver struct {
	resolveFn func(r *http.Request) model.Session
}

func (m *mockResolver) Resolve(r *http.Request) model.Session {
	if m.resolveFn != nil {
		return m.resolveFn(r)
	}
	return model.AnonymousSession()
}

type mockAuthorizer struct {
	requireRoleFn func(ctx context.Context, session model.Session, required model.Role) (string, *auth.Denial)
}

func (m *mockAuthorizer) RequireRole(ctx context.Context, session model.Session, required model.Role) (string, *auth.Denial) {
	if m.requireRoleFn != nil {
		return m.requireRoleFn(ctx, session, required)
	}
	return "", &auth.Denial{Redirect: auth.LoginPath, Reason: metrics.DenialAnonymous}
}

type mockRefresher struct {
	getUserFn func(ctx context.Context, accessToken string) (*model.Identity, error)
	refreshFn func(ctx context.Context, refreshToken string) (*identity.Session, error)
}

func (m *mockRefresher) GetUser(ctx context.Context, accessToken string) (*model.Identity, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, accessToken)
	}
	return &model.Identity{ID: "user-1"}, nil
}

func (m *mockRefresher) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, &identity.Error{Kind: identity.KindInvalidSession}
}

// guardMetrics はルートガード関連の呼び出しを数えるMetricsCollector。
type guardMetrics struct {
	metrics.NopCollector
	mu         sync.Mutex
	redirects  int
	failOpens  int
	refreshOK  int
	refreshBad int
}

func (g *guardMetrics) RecordRouteGuardRedirect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.redirects++
}

func (g *guardMetrics) RecordRouteGuardFailOpen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOpens++
}

func (g *guardMetrics) RecordSessionRefresh(success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if success {
		g.refreshOK++
	} else {
		g.refreshBad++
	}
}

// compile-time interface check
var (
	_ SessionResolver          = (*mockResolver)(nil)
	_ Authorizer               = (*mockAuthorizer)(nil)
	_ SessionRefresher         = (*mockRefresher)(nil)
	_ metrics.MetricsCollector = (*guardMetrics)(nil)
	_ SessionResolver          = (*auth.Resolver)(nil)
	_ Authorizer               = (*auth.Gate)(nil)
	_ SessionRefresher         = (identity.Client)(nil)
)
