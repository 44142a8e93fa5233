package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/humanize/internal/metrics"
	"github.com/hitoshi/humanize/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	PrincipalResolver middleware.PrincipalResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// リライト
	RewriteService RewriteServiceInterface
	MaxInputChars  int

	// アカウント
	CreditService  CreditServiceInterface
	ProjectService ProjectServiceInterface
	BillingService BillingServiceInterface
	UserService    UserServiceInterface

	// 問い合わせ
	ContactService ContactServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery
//	  未認証ルート: → RateLimit(Public)
//	  認証ルート:   → Auth → CSRF → RateLimit(General) [→ RateLimit(Rewrite)]
//
// /health と /metrics はレート制限の対象外とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware())

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.AuthConfig.CookieSecure,
		CookieDomain: deps.AuthConfig.CookieDomain,
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	humanizerHandler := NewHumanizerHandler(deps.RewriteService, deps.MaxInputChars)
	accountHandler := NewAccountHandler(deps.CreditService, deps.ProjectService, deps.BillingService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	contactHandler := NewContactHandler(deps.ContactService)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	// ミドルウェアスタック: RateLimit(Public)。ゲスト発行はRateLimit(Guest)も通す
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.PublicMiddleware())

		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/login", authHandler.Login)
		r.With(deps.RateLimiter.GuestMiddleware()).Post("/auth/guest", authHandler.Guest)
		r.Get("/auth/google/login", authHandler.GoogleLogin)
		r.Get("/auth/google/callback", authHandler.GoogleCallback)

		r.Get("/plans", accountHandler.ListPlans)
		r.Post("/contact", contactHandler.Submit)

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.PrincipalResolver))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// セッション管理
		r.Get("/auth/me", authHandler.Me)
		r.Post("/auth/logout", authHandler.Logout)

		// リライト（上流APIを呼ぶためリライト専用レート制限を追加）
		r.Route("/api/humanizer", func(r chi.Router) {
			r.Use(deps.RateLimiter.RewriteMiddleware())
			r.Post("/", humanizerHandler.Humanize)
			r.Post("/alternatives", humanizerHandler.Alternatives)
			r.Post("/explain", humanizerHandler.Explain)
		})
		r.Post("/api/diff", humanizerHandler.Diff)

		// クレジット
		r.Get("/api/credits", accountHandler.Credits)
		r.Get("/api/credits/history", accountHandler.CreditHistory)

		// プロジェクト
		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", accountHandler.ListProjects)
			r.Post("/", accountHandler.CreateProject)
			r.Get("/analytics", accountHandler.ProjectAnalytics)
			r.Delete("/{id}", accountHandler.DeleteProject)
		})

		// 支払い
		r.Get("/api/payments", accountHandler.ListPayments)
		r.Post("/api/payments", accountHandler.Checkout)

		// ユーザー管理
		r.Delete("/api/users/me", userHandler.Withdraw)
	})

	return r
}
