package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/planboard/internal/guard"
	"github.com/hitoshi/planboard/internal/metrics"
	"github.com/hitoshi/planboard/internal/middleware"
	"github.com/hitoshi/planboard/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// セッション
	SessionService SessionServiceInterface
	Snapshots      guard.SnapshotSource

	// 上流プロキシ
	Forwarder ForwarderInterface
	Sanitizer SanitizerInterface

	// メトリクス
	Metrics         *metrics.Collector
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → CSRF
//
// 保護サーフェス（/api/*）には加えてレート制限とアクセスガードが適用される。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.SessionService, deps.Logger)
	proxyHandler := NewProxyHandler(deps.Forwarder, deps.Sanitizer, deps.Metrics, deps.Logger)

	// --- 運用エンドポイント ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))

	// --- 認証ルート ---

	r.Route("/auth", func(r chi.Router) {
		// POST /auth/login - ログイン（専用レート制限を追加）
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)

		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Get("/session", authHandler.SessionState)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	})

	// --- 保護サーフェス ---
	// サーフェスごとの要件はロール→パーミッション→階層の順に評価される。
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		surfaces := []struct {
			pattern string
			req     guard.Requirement
		}{
			// プロジェクト一覧・タスク管理は全ロール・全階層で利用可能
			{"/api/projects", guard.Requirement{Feature: model.FeatureTaskTracking}},
			{"/api/schedule", guard.Requirement{Feature: model.FeatureCriticalPath}},
			{"/api/reports/earned-value", guard.Requirement{
				Permission: model.PermViewReports,
				Feature:    model.FeatureEarnedValue,
			}},
			{"/api/reports", guard.Requirement{
				Permission: model.PermViewReports,
				Feature:    model.FeatureBasicReports,
			}},
			{"/api/resources/leveling", guard.Requirement{Feature: model.FeatureResourceLeveling}},
			{"/api/ai/recommendations", guard.Requirement{Feature: model.FeatureAIRecommendations}},
			{"/api/analytics/portfolio", guard.Requirement{Feature: model.FeaturePortfolioAnalytics}},
			{"/api/admin/users", guard.Requirement{
				Role:         model.RoleOrgAdmin,
				FallbackRole: model.RoleSuperAdmin,
				Permission:   model.PermManageUsers,
			}},
			{"/api/admin/billing", guard.Requirement{
				Role:         model.RoleOrgAdmin,
				FallbackRole: model.RoleSuperAdmin,
				Permission:   model.PermManageBilling,
			}},
			{"/api/exports", guard.Requirement{Permission: model.PermExportData}},
			{"/api/timesheets/approvals", guard.Requirement{Permission: model.PermApproveTimesheets}},
		}

		for _, s := range surfaces {
			g := guard.NewGuardMiddleware(deps.Snapshots, s.req, deps.Metrics)
			r.Route(s.pattern, func(r chi.Router) {
				r.Use(g)
				r.Handle("/", proxyHandler)
				r.Handle("/*", proxyHandler)
			})
		}

		// 上記以外の/api/*はログイン必須の既定要件で中継する
		fallback := guard.NewGuardMiddleware(deps.Snapshots, guard.Requirement{
			Feature: model.FeatureTaskTracking,
		}, deps.Metrics)
		r.With(fallback).Handle("/api/*", proxyHandler)
	})

	return r
}
