package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/campusevent/internal/access"
	"github.com/hitoshi/campusevent/internal/metrics"
	"github.com/hitoshi/campusevent/internal/middleware"
	"github.com/hitoshi/campusevent/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker
	TokenDecoder      middleware.TokenDecoder
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	TracerProvider    trace.TracerProvider

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// イベント
	EventService EventServiceInterface
	EventOwners  EventOwnerLookup

	// 参加登録
	RegistrationService RegistrationServiceInterface

	// フィードバック
	FeedbackService FeedbackServiceInterface

	// 統計
	StatsService StatsServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Tracing → Logging → SecurityHeaders → CORS → Authenticate → RateLimit(General) → CSRF → Authorize
//
// Authorizeはルートごとに宣言したaccess.Policyで評価する。
// /health と /metrics はポリシーの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewTracingMiddleware(deps.TracerProvider))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- ポリシー外のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	eventHandler := NewEventHandler(deps.EventService)
	regHandler := NewRegistrationHandler(deps.RegistrationService)
	feedbackHandler := NewFeedbackHandler(deps.FeedbackService)
	statsHandler := NewStatsHandler(deps.StatsService)

	// ルートごとのアクセス方針
	var (
		open          = access.Open()
		members       = access.Roles(model.RoleStudent, model.RoleOrganizer, model.RoleAdmin)
		managers      = access.Roles(model.RoleOrganizer, model.RoleAdmin)
		ownedByEvent  = managers.OwnedBy(EventOwnerResolver(deps.EventOwners), model.RoleAdmin)
		studentsOnly  = access.Roles(model.RoleStudent)
		adminsOnly    = access.Roles(model.RoleAdmin)
		authorize     = func(p access.Policy) func(http.Handler) http.Handler { return middleware.Authorize(p, deps.Metrics) }
		loginThrottle = deps.RateLimiter.LoginMiddleware()
	)

	// --- API ---
	// ミドルウェアスタック: Authenticate → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthenticateMiddleware(deps.TokenDecoder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// 認証
		r.Route("/api/auth", func(r chi.Router) {
			r.With(loginThrottle, authorize(open)).Post("/register", authHandler.Register)
			r.With(loginThrottle, authorize(open)).Post("/login", authHandler.Login)
			r.With(authorize(open)).Post("/logout", authHandler.Logout)
		})

		// ユーザー
		r.Route("/api/users/me", func(r chi.Router) {
			r.With(authorize(members)).Get("/", userHandler.Me)
			r.With(authorize(members)).Put("/", userHandler.UpdateMe)
		})

		// イベント
		r.Route("/api/events", func(r chi.Router) {
			r.With(authorize(open)).Get("/", eventHandler.List)
			r.With(authorize(managers)).Post("/", eventHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.With(authorize(open)).Get("/", eventHandler.Get)
				r.With(authorize(ownedByEvent)).Put("/", eventHandler.Update)
				r.With(authorize(ownedByEvent)).Delete("/", eventHandler.Delete)

				// 参加登録
				r.With(authorize(studentsOnly)).Post("/registrations", regHandler.Register)
				r.With(authorize(studentsOnly)).Delete("/registrations/me", regHandler.Cancel)
				r.With(authorize(ownedByEvent)).Get("/registrations", regHandler.ListRegistrants)
				r.With(authorize(ownedByEvent)).Get("/registrations/export", regHandler.Export)

				// フィードバック
				r.With(authorize(open)).Get("/feedback", feedbackHandler.List)
				r.With(authorize(studentsOnly)).Post("/feedback", feedbackHandler.Submit)
			})
		})

		r.With(authorize(studentsOnly)).Get("/api/registrations/me", regHandler.ListMine)

		// 管理者
		r.With(authorize(adminsOnly)).Get("/api/admin/stats", statsHandler.Get)
	})

	return r
}
