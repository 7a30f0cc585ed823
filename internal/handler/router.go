package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/ssogate/internal/metrics"
	"github.com/hitoshi/ssogate/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	TrustProxyHeaders bool // X-Forwarded-For / X-Real-IP を信頼してクライアントIPを決める
	RateLimiter       *middleware.RateLimiter
	TokenVerifier     TokenVerifier
	APIKeyVerifier    middleware.APIKeyVerifier
	Metrics           metrics.MetricsCollector
	Gatherer          prometheus.Gatherer
	DB                Pinger

	// 認証
	AuthService AuthServiceInterface

	// 認可レジストリ。アプリケーション・利用者・監査・SDKの判定を1つのサービスが担う。
	Registry RegistryService

	// APIキー
	APIKeyService APIKeyServiceInterface
}

// RegistryService は認可レジストリに対してハンドラー群が必要とするインターフェースの合成。
type RegistryService interface {
	ApplicationServiceInterface
	UserServiceInterface
	AuditServiceInterface
	AccessChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	(RealIP) → Recovery → Logging → Metrics → CORS → SecurityHeaders
//
// 認証が必要なルートには Bearer → RateLimit(General)、SDKルートには APIKey → RateLimit(General) を追加する。
// /auth/login は IP単位の RateLimit(Login) を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware(logger, collector))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.TokenVerifier)
	userHandler := NewUserHandler(deps.Registry)
	appHandler := NewApplicationHandler(deps.Registry)
	keyHandler := NewKeyHandler(deps.APIKeyService)
	adminHandler := NewAdminHandler(deps.Registry)
	sdkHandler := NewSDKHandler(deps.AuthService, deps.TokenVerifier, deps.Registry)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/verify", authHandler.Verify)
	})
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/auth/login", authHandler.Login)

	// --- Bearer認証が必要なルート ---
	// ミドルウェアスタック: Bearer → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/me", authHandler.Me)
		r.Put("/auth/profile", authHandler.UpdateProfile)

		// 利用者管理
		r.Get("/users", userHandler.ListUsers)
		r.Put("/users/{id}/role", userHandler.SetRole)
		r.Put("/users/{id}/status", userHandler.SetStatus)
		r.Get("/user/email/{email}/apps", userHandler.ListAuthorizedApplications)
		r.Post("/user/apps/{id}/remove", userHandler.RemoveSelf)

		// アプリケーション管理
		r.Route("/applications", func(r chi.Router) {
			r.Get("/", appHandler.ListApplications)
			r.Post("/", appHandler.CreateApplication)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", appHandler.GetApplication)
				r.Put("/", appHandler.UpdateApplication)
				r.Delete("/", appHandler.DeleteApplication)
				r.Post("/block", appHandler.SetBlocked)
				r.Post("/users/block", appHandler.SetGrantBlocked)
				r.Post("/client-secret", appHandler.RotateClientSecret)
				r.Get("/api-keys", keyHandler.ListApplicationKeys)
				r.Post("/api-keys", keyHandler.CreateApplicationKey)
			})
		})
		r.Post("/map", appHandler.Map)
		r.Post("/unmap", appHandler.Unmap)

		// APIキー
		r.Route("/keys", func(r chi.Router) {
			r.Get("/", keyHandler.ListOwnKeys)
			r.Post("/", keyHandler.CreateOwnKey)
			r.Delete("/{id}", keyHandler.RevokeKey)
		})

		// 監査
		r.Get("/admin/removals", adminHandler.ListRemovals)
	})

	// --- APIキー認証が必要なルート ---
	r.Route("/sdk", func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.APIKeyVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", sdkHandler.Login)
		r.Get("/verify", sdkHandler.Verify)
	})

	return r
}
