package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/middleware"
	"github.com/hitoshi/mentorhub/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	RouteGuard        *middleware.RouteGuard
	SessionResolver   middleware.SessionResolver
	Authorizer        middleware.Authorizer
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	Cookies           identity.CookieOptions
	Logger            *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService    AuthServiceInterface
	ProfileService ProfileServiceInterface

	// プログラム
	ProgramService ProgramServiceInterface

	// 管理
	ContentAdmin ContentAdminServiceInterface
	UserAdmin    UserAdminServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → RouteGuard → Session → Logging → SecurityHeaders → CORS → CSRF
//
// RouteGuardは保護パスへのCookieなしアクセスをハンドラー到達前に/loginへリダイレクトする。
// 認可はルートグループごとのRequireRoleで行う。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RealIP)
	r.Use(deps.RouteGuard.Middleware())
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookies.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileService, deps.Cookies)
	programHandler := NewProgramHandler(deps.ProgramService)
	adminHandler := NewAdminHandler(deps.ContentAdmin, deps.UserAdmin)

	// --- 運用 ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.SignInMiddleware())
		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.Signup)
	})
	r.Post("/logout", authHandler.Logout)
	r.Route("/auth", func(r chi.Router) {
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
		r.Get("/me", authHandler.Me)
	})

	// --- USERロールが必要なルート ---
	// ミドルウェアスタック: RequireRole(USER) → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(deps.Authorizer, model.RoleUser))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/dashboard", programHandler.Dashboard)
		r.Route("/programs", func(r chi.Router) {
			r.Get("/", programHandler.ListPrograms)
			r.Get("/{id}", programHandler.GetProgram)
			r.Post("/{id}/enroll", programHandler.Enroll)
		})
	})

	// --- ADMINロールが必要なルート ---
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(deps.Authorizer, model.RoleAdmin))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/users", adminHandler.ListUsers)
		r.Post("/users/{id}/role", adminHandler.UpdateUserRole)

		r.Post("/programs", adminHandler.CreateProgram)
		r.Post("/programs/{id}/delete", adminHandler.DeleteProgram)
		r.Post("/videos", adminHandler.CreateVideo)
		r.Post("/videos/{id}/delete", adminHandler.DeleteVideo)
		r.Post("/resources", adminHandler.CreateResource)
		r.Post("/resources/{id}/delete", adminHandler.DeleteResource)
	})

	return r
}
