package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sitetrack/internal/metrics"
	"github.com/hitoshi/sitetrack/internal/middleware"
)

// HealthChecker はストレージの死活確認インターフェース。
// *sql.DBがそのまま満たす。インメモリストアの場合はnilでよい。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	UserResolver       middleware.UserResolver
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	CSRFConfig         middleware.CSRFConfig

	// ストレージ死活確認（nil可）
	HealthChecker HealthChecker

	// メトリクス（nil可。nilの場合は記録しない）
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// サービス
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	ProjectService ProjectServiceInterface
	TrackService   TrackServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → Session → CSRF
//
// 管理エンドポイント（/api/projects以下と/api/progress以下）はさらに
// RequireAdminで保護する。ログイン系と施主照会には専用のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSessionMiddleware(deps.UserResolver))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	projectHandler := NewProjectHandler(deps.ProjectService, deps.Metrics)
	trackHandler := NewTrackHandler(deps.TrackService, deps.Metrics)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証（総当たり対策のレート制限付き）
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/api/register", authHandler.Register)
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/api/login", authHandler.Login)
	r.Post("/api/logout", authHandler.Logout)
	r.Get("/api/user", authHandler.Me)

	// 施主向け進捗照会（専用レート制限付き）
	r.With(deps.RateLimiter.TrackMiddleware()).Post("/api/track", trackHandler.Track)

	// --- 管理者専用ルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireAdminMiddleware())

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", projectHandler.ListProjects)
			r.Post("/", projectHandler.CreateProject)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", projectHandler.DeleteProject)
				r.Get("/progress", projectHandler.ListSteps)
				r.Post("/progress", projectHandler.AddStep)
			})
		})

		r.Route("/api/progress/{id}", func(r chi.Router) {
			r.Patch("/", projectHandler.UpdateStep)
			r.Delete("/", projectHandler.DeleteStep)
		})
	})

	return r
}

// newHealthHandler は死活監視エンドポイントのハンドラーを返す。
// checkerが設定されている場合はストレージへの到達性も確認する。
// GET /health
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
