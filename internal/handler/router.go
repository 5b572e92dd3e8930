package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/evalman/internal/metrics"
	"github.com/hitoshi/evalman/internal/middleware"
	"github.com/hitoshi/evalman/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector

	// メトリクス公開用レジストリ（nilの場合/metricsは公開しない）
	MetricsGatherer prometheus.Gatherer

	// サービス
	AuthService       AuthServiceInterface
	EvaluationService EvaluationServiceInterface
	AdminService      AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → [Session → RateLimit(General)] → [RequireRole(admin)]
//
// 認証ルート（/auth/login）と/health、/metricsはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	authHandler := NewAuthHandler(deps.AuthService, deps.Collector)
	evalHandler := NewEvaluationHandler(deps.EvaluationService)
	adminHandler := NewAdminHandler(deps.AdminService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		// ログインは総当たり対策のIP単位レート制限を適用
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.UserFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 評価ワークフロー
		r.Route("/api/evaluations", func(r chi.Router) {
			r.Get("/next-case", evalHandler.NextCase)
			r.Get("/progress", evalHandler.Progress)
			r.Post("/", evalHandler.Submit)
		})

		// 管理者専用ルート
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireRoleMiddleware(model.RoleAdmin))

			r.Get("/stats", adminHandler.Stats)
			r.Get("/export", adminHandler.ExportCSV)

			r.Route("/evaluators", func(r chi.Router) {
				r.Get("/", adminHandler.ListEvaluators)
				r.Post("/", adminHandler.CreateEvaluator)

				r.Route("/{id}", func(r chi.Router) {
					r.Patch("/", adminHandler.UpdateEvaluator)
					r.Delete("/", adminHandler.DeleteEvaluator)
				})
			})

			r.Post("/cases", adminHandler.CreateCase)
		})
	})

	return r
}
