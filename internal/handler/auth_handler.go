// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/mentorhub/internal/auth"
	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/middleware"
	"github.com/hitoshi/mentorhub/internal/model"
	"github.com/hitoshi/mentorhub/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) (*auth.SignInResult, error)
	SignUp(ctx context.Context, in auth.SignUpInput) (*model.User, error)
	SignOut(ctx context.Context, accessToken string)
}

// ProfileServiceInterface は現在のユーザー情報を返すサービスインターフェース。
type ProfileServiceInterface interface {
	Me(ctx context.Context, session model.Session) (*user.Profile, error)
}

// AuthHandler はサインイン・サインアップ・サインアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	profiles ProfileServiceInterface
	cookies  identity.CookieOptions
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, profiles ProfileServiceInterface, cookies identity.CookieOptions) *AuthHandler {
	return &AuthHandler{
		service:  service,
		profiles: profiles,
		cookies:  cookies,
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInResponse struct {
	UserID      string    `json:"user_id"`
	SessionKind string    `json:"session_kind"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Level       string `json:"level"`
	SessionKind string `json:"session_kind,omitempty"`
}

// Login はメールアドレスとパスワードでサインインする。
// IdPセッションの場合はIdPのCookieを、フォールバックの場合はcustom_session Cookieを設定し、
// もう一方のCookieは削除する。成功時は303でホームへ遷移させる。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := signInResponse{
		UserID:      result.UserID,
		SessionKind: result.Kind.String(),
	}
	switch result.Kind {
	case model.SessionProvider:
		identity.WriteSession(w, result.ProviderSession, h.cookies)
		auth.ClearFallbackCookie(w, h.cookies)
		resp.ExpiresAt = result.ProviderSession.ExpiresAt
	case model.SessionFallback:
		auth.SetFallbackCookie(w, result.FallbackToken, result.FallbackExpiresAt, h.cookies)
		identity.ClearSession(w, h.cookies)
		resp.ExpiresAt = result.FallbackExpiresAt
	}

	w.Header().Set("Location", auth.HomePath)
	writeJSON(w, http.StatusSeeOther, resp)
}

// Signup はアカウントを作成する。セッションは発行せず、303でサインイン画面へ遷移させる。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", auth.LoginPath)
	writeJSON(w, http.StatusSeeOther, userResponse{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  string(u.Role),
		Level: string(u.Level),
	})
}

// Logout はIdPセッションを失効させ、すべてのセッションCookieを削除する。
// IdP側で失敗してもCookieは必ず削除する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.SignOut(r.Context(), identity.TokensFromRequest(r).AccessToken)

	identity.ClearSession(w, h.cookies)
	auth.ClearFallbackCookie(w, h.cookies)

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session.IsAnonymous() {
		writeAPIErrorResponse(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	p, err := h.profiles.Me(r.Context(), session)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:          p.ID,
		Email:       p.Email,
		Name:        p.Name,
		Role:        string(p.Role),
		Level:       string(p.Level),
		SessionKind: p.SessionKind.String(),
	})
}
