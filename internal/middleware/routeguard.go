package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/mentorhub/internal/auth"
	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/metrics"
	"github.com/hitoshi/mentorhub/internal/model"
)

// SessionRefresher はIdPセッションの確認と更新に必要なインターフェース。
// identity.Clientの部分集合として定義する。
type SessionRefresher interface {
	GetUser(ctx context.Context, accessToken string) (*model.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.Session, error)
}

// RouteGuardConfig はルートガードの設定。
type RouteGuardConfig struct {
	ProtectedPrefixes []string
	Cookie            identity.CookieOptions
}

// RouteGuard はハンドラーより前段でIdPセッションを更新し、
// セッションCookieを持たない保護パスへのアクセスをログイン画面へ誘導する。
// 認可の判定はRequireRoleが行うため、内部エラー時はリクエストをそのまま通す。
type RouteGuard struct {
	idp     SessionRefresher
	config  RouteGuardConfig
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewRouteGuard はRouteGuardを生成する。
func NewRouteGuard(idp SessionRefresher, config RouteGuardConfig, m metrics.MetricsCollector, logger *slog.Logger) *RouteGuard {
	return &RouteGuard{idp: idp, config: config, metrics: m, logger: logger}
}

// Middleware はルートガードのミドルウェアを返す。
func (g *RouteGuard) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, redirect, err := g.inspect(w, r)
			if err != nil {
				g.metrics.RecordRouteGuardFailOpen()
				g.logger.WarnContext(r.Context(), "route_guard_fail_open",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if redirect {
				g.metrics.RecordRouteGuardRedirect()
				http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

// IsProtected はパスが保護対象のプレフィックスに一致するかを返す。
func (g *RouteGuard) IsProtected(path string) bool {
	for _, prefix := range g.config.ProtectedPrefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// inspect はセッションの更新を試み、後段へ渡すリクエストとログイン画面へ誘導すべきかを返す。
// panicはエラーとして返す。
func (g *RouteGuard) inspect(w http.ResponseWriter, r *http.Request) (req *http.Request, redirect bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			req, redirect = nil, false
			err = fmt.Errorf("panic in route guard: %v", rec)
		}
	}()

	req, err = g.refreshIfNeeded(w, r)
	if err != nil {
		return nil, false, err
	}

	if !g.IsProtected(req.URL.Path) {
		return req, false, nil
	}
	return req, !auth.HasSessionCookie(req), nil
}

// refreshIfNeeded はアクセストークンが無いか失効している場合に、リフレッシュトークンで
// IdPセッションを更新し、レスポンスと処理中のリクエストの両方のCookieを書き換える。
// IdPで確認できたアカウントはcontextに格納し、セッション解決で再利用させる。
func (g *RouteGuard) refreshIfNeeded(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	tokens := identity.TokensFromRequest(r)
	if tokens.RefreshToken == "" {
		return r, nil
	}

	ctx := r.Context()
	if tokens.AccessToken != "" {
		ident, err := g.idp.GetUser(ctx, tokens.AccessToken)
		if err == nil {
			if ident != nil {
				r = r.WithContext(identity.ContextWithVerifiedUser(ctx, tokens.AccessToken, *ident))
			}
			return r, nil
		}
		if identity.KindOf(err) != identity.KindInvalidSession {
			return nil, fmt.Errorf("failed to check provider session: %w", err)
		}
	}

	sess, err := g.idp.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		g.metrics.RecordSessionRefresh(false)
		if identity.KindOf(err) != identity.KindInvalidSession {
			return nil, fmt.Errorf("failed to refresh provider session: %w", err)
		}
		// 失効したリフレッシュトークンは以後のリクエストで送られないよう削除する
		identity.ClearSession(w, g.config.Cookie)
		identity.RewriteRequestTokens(r, &identity.Session{})
		g.logger.InfoContext(ctx, "provider session expired")
		return r, nil
	}

	g.metrics.RecordSessionRefresh(true)
	identity.WriteSession(w, sess, g.config.Cookie)
	identity.RewriteRequestTokens(r, sess)
	g.logger.DebugContext(ctx, "provider session refreshed",
		slog.String("user_id", sess.User.ID),
	)
	return r.WithContext(identity.ContextWithVerifiedUser(ctx, sess.AccessToken, sess.User)), nil
}
