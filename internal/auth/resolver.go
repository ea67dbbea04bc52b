package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/model"
)

// Resolver はリクエストのCookieから呼び出し元のセッションを解決する。
// IdPセッションを最優先し、次にフォールバックセッショントークン、どちらもなければ匿名とする。
type Resolver struct {
	idp    identity.Client
	tokens *TokenManager
	logger *slog.Logger
}

// NewResolver はResolverを生成する。
func NewResolver(idp identity.Client, tokens *TokenManager, logger *slog.Logger) *Resolver {
	return &Resolver{idp: idp, tokens: tokens, logger: logger}
}

// Resolve はリクエストのセッションを解決する。
// 無効・期限切れ・改ざんされたトークンはCookieがない場合と区別しない。
func (r *Resolver) Resolve(req *http.Request) model.Session {
	ctx := req.Context()

	if tokens := identity.TokensFromRequest(req); tokens.AccessToken != "" {
		// ルートガードが同じトークンで確認済みならIdPへ問い合わせない
		if ident, ok := identity.VerifiedUserFromContext(ctx, tokens.AccessToken); ok {
			return model.ProviderSession(ident.ID)
		}
		ident, err := r.idp.GetUser(ctx, tokens.AccessToken)
		if err == nil && ident != nil && ident.ID != "" {
			return model.ProviderSession(ident.ID)
		}
		if err != nil && identity.KindOf(err) != identity.KindInvalidSession {
			r.logger.WarnContext(ctx, "IdPセッションの解決に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}

	if c, err := req.Cookie(FallbackCookieName); err == nil && c.Value != "" {
		if payload, err := r.tokens.Verify(c.Value); err == nil {
			return model.FallbackSession(payload.UserID)
		}
	}

	return model.AnonymousSession()
}

// HasSessionCookie はIdPアクセストークンまたはフォールバックトークンのCookieが存在するかを返す。
// 内容の検証は行わない。
func HasSessionCookie(req *http.Request) bool {
	if identity.TokensFromRequest(req).AccessToken != "" {
		return true
	}
	c, err := req.Cookie(FallbackCookieName)
	return err == nil && c.Value != ""
}

// SetFallbackCookie はフォールバックセッショントークンをHTTP Only Cookieに設定する。
func SetFallbackCookie(w http.ResponseWriter, token string, expiresAt time.Time, opts identity.CookieOptions) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FallbackCookieName,
		Value:    token,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearFallbackCookie はフォールバックセッションCookieを削除する。
func ClearFallbackCookie(w http.ResponseWriter, opts identity.CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     FallbackCookieName,
		Value:    "",
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
