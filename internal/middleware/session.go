// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/mentorhub/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// sessionContextKey は解決済みセッションを格納するキー。
	sessionContextKey = contextKey("session")
	// userIDContextKey は認可済みのユーザーIDを格納するキー。
	userIDContextKey = contextKey("user_id")
)

// SessionResolver はリクエストから呼び出し元のセッションを解決するインターフェース。
// auth.Resolverが実装する。
type SessionResolver interface {
	Resolve(r *http.Request) model.Session
}

// NewSessionMiddleware はCookieからセッションを解決し、リクエストコンテキストに注入するミドルウェアを返す。
// 匿名のリクエストも拒否せずに通す。拒否の判断はRequireRoleが行う。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := resolver.Resolve(r)
			ctx := ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext はリクエストコンテキストから解決済みセッションを取得する。
// セッションミドルウェアを通過していない場合は匿名セッションを返す。
func SessionFromContext(ctx context.Context) model.Session {
	session, ok := ctx.Value(sessionContextKey).(model.Session)
	if !ok {
		return model.AnonymousSession()
	}
	return session
}

// ContextWithSession はコンテキストにセッションを注入する。
func ContextWithSession(ctx context.Context, session model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// UserIDFromContext はリクエストコンテキストから認可済みのユーザーIDを取得する。
// RequireRoleミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストに認可済みのユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
