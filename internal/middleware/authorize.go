package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/mentorhub/internal/auth"
	"github.com/hitoshi/mentorhub/internal/model"
)

// Authorizer はセッションとロールから操作の可否を判定するインターフェース。
// auth.Gateが実装する。
type Authorizer interface {
	RequireRole(ctx context.Context, session model.Session, required model.Role) (string, *auth.Denial)
}

// RequireRole はルートグループに要求ロールを課すミドルウェアを返す。
// 拒否された場合は理由を返さずに303でリダイレクトする。
// 許可された場合は検証済みのユーザーIDをコンテキストに注入する。
func RequireRole(authorizer Authorizer, role model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())

			userID, denial := authorizer.RequireRole(r.Context(), session, role)
			if denial != nil {
				slog.Info("authorization denied",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", denial.Reason),
				)
				http.Redirect(w, r, denial.Redirect, http.StatusSeeOther)
				return
			}

			ctx := ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
