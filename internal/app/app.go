package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/ssogate/internal/apikey"
	"github.com/hitoshi/ssogate/internal/audit"
	"github.com/hitoshi/ssogate/internal/auth"
	"github.com/hitoshi/ssogate/internal/config"
	"github.com/hitoshi/ssogate/internal/database"
	"github.com/hitoshi/ssogate/internal/handler"
	"github.com/hitoshi/ssogate/internal/logger"
	"github.com/hitoshi/ssogate/internal/metrics"
	"github.com/hitoshi/ssogate/internal/middleware"
	"github.com/hitoshi/ssogate/internal/registry"
	"github.com/hitoshi/ssogate/internal/repository"
	"github.com/hitoshi/ssogate/internal/security"
	"github.com/hitoshi/ssogate/internal/token"
	"github.com/hitoshi/ssogate/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定値に合わせてログレベルを反映する（Validate済みのため失敗しない）
	if lvl, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// 軽量サブコマンドはフル初期化をスキップする
	if !cmd.RequiresConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("log_level", cfg.LogLevel),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandBootstrapAdmin:
		return runBootstrapAdmin(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// Server はAPIサーバーを構成する部品をまとめたもの。
type Server struct {
	Handler     http.Handler
	RateLimiter *middleware.RateLimiter
}

// NewServer は全依存関係をワイヤリングし、APIサーバーのハンドラーを構築する。
// regにはメトリクスの登録先を渡す。
func NewServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) *Server {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	identityRepo := repository.NewPostgresIdentityRepo(db)
	applicationRepo := repository.NewPostgresApplicationRepo(db)
	grantRepo := repository.NewPostgresGrantRepo(db)
	apiKeyRepo := repository.NewPostgresAPIKeyRepo(db)
	refreshRepo := repository.NewPostgresRefreshCredentialRepo(db)
	removalRepo := repository.NewPostgresRemovalLogRepo(db)

	// 3. トークンとセキュリティポリシー
	tokens := token.NewManager(token.Config{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.AccessTokenTTL,
	})
	urlPolicy := security.NewURLPolicy(cfg.AllowPrivateRedirects)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(identityRepo, refreshRepo, tokens, collector, auth.ServiceConfig{
		RefreshTTL: cfg.RefreshTokenTTL,
		BcryptCost: cfg.BcryptCost,
	})
	registryService := registry.NewService(
		identityRepo, applicationRepo, grantRepo, refreshRepo,
		audit.NewLog(removalRepo), urlPolicy, collector,
		registry.Config{
			AuditApplicationDeletion: cfg.AuditApplicationDeletion,
			BcryptCost:               cfg.BcryptCost,
		},
	)
	apiKeyService := apikey.NewService(apiKeyRepo, identityRepo, applicationRepo, collector, cfg.APIKeyPrefix)

	// 5. ルーターの構築（レート制限の設定値はreq/min単位）
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimiter:       rateLimiter,
		TokenVerifier:     tokens,
		APIKeyVerifier:    apiKeyService,
		Metrics:           collector,
		Gatherer:          reg,
		DB:                db,

		AuthService:   authService,
		Registry:      registryService,
		APIKeyService: apiKeyService,
	})

	return &Server{Handler: router, RateLimiter: rateLimiter}
}

// newMetricsRegistry はプロセス・ランタイムのメトリクスを含むレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := NewServer(cfg, db, newMetricsRegistry())
	defer srv.RateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れリフレッシュトークンのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// ワーカーはスクレイプを受けないため、収集した値はログでのみ確認する
	collector := metrics.NewCollector(prometheus.NewRegistry())

	job := cleanup.NewCleanupJob(db, collector, slog.Default())
	job.RetentionDays = cfg.RefreshRetentionDays

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.RefreshRetentionDays),
	)

	// コンテキストがキャンセルされるまでブロックする
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runBootstrapAdmin はBOOTSTRAP_ADMIN_*の設定から最初の管理者を作成する。
func runBootstrapAdmin(cfg *config.Config) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	identity, err := BootstrapAdmin(ctx, repository.NewPostgresIdentityRepo(db), BootstrapInput{
		Email:      cfg.BootstrapAdminEmail,
		Password:   cfg.BootstrapAdminPassword,
		Name:       cfg.BootstrapAdminName,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin failed: %w", err)
	}

	slog.Info("administrator ready",
		slog.String("identity_id", identity.ID),
		slog.String("email", identity.Email),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User == nil {
		return u.Scheme + "://" + u.Host + u.Path
	}
	return u.Scheme + "://***@" + u.Host + u.Path
}
