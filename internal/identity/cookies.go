package identity

import (
	"net/http"
	"time"
)

const (
	// AccessTokenCookie はIdPアクセストークンを保持するCookie名。
	AccessTokenCookie = "sb-access-token"
	// RefreshTokenCookie はIdPリフレッシュトークンを保持するCookie名。
	RefreshTokenCookie = "sb-refresh-token"

	// refreshCookieMaxAge はリフレッシュトークンCookieの有効期間（秒）。
	refreshCookieMaxAge = 7 * 24 * 60 * 60
)

// CookieOptions はセッションCookieの属性。
type CookieOptions struct {
	Domain string
	Secure bool
}

// Tokens はリクエストから読み取ったIdPセッションのトークン。
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// TokensFromRequest はリクエストのCookieからIdPセッションのトークンを読み取る。
// Cookieがない場合は空文字のフィールドを返す。
func TokensFromRequest(r *http.Request) Tokens {
	var t Tokens
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		t.AccessToken = c.Value
	}
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		t.RefreshToken = c.Value
	}
	return t
}

// WriteSession はIdPセッションをCookieに書き込む。
// アクセストークンCookieの有効期限はトークンの有効期限に合わせる。
func WriteSession(w http.ResponseWriter, s *Session, opts CookieOptions) {
	maxAge := int(time.Until(s.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(w, newCookie(AccessTokenCookie, s.AccessToken, maxAge, opts))
	if s.RefreshToken != "" {
		http.SetCookie(w, newCookie(RefreshTokenCookie, s.RefreshToken, refreshCookieMaxAge, opts))
	}
}

// ClearSession はIdPセッションCookieを削除する。
func ClearSession(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, newCookie(AccessTokenCookie, "", -1, opts))
	http.SetCookie(w, newCookie(RefreshTokenCookie, "", -1, opts))
}

// RewriteRequestTokens は更新後のトークンを処理中のリクエストにも反映する。
// 同一リクエスト内の後続ハンドラーが新しいアクセストークンを参照できるようにする。
// トークンが空のSessionを渡すとリクエストからIdPセッションのCookieを取り除く。
func RewriteRequestTokens(r *http.Request, s *Session) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name == AccessTokenCookie || c.Name == RefreshTokenCookie {
			continue
		}
		r.AddCookie(c)
	}
	if s.AccessToken != "" {
		r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: s.AccessToken})
	}
	if s.RefreshToken != "" {
		r.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: s.RefreshToken})
	}
}

func newCookie(name, value string, maxAge int, opts CookieOptions) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
