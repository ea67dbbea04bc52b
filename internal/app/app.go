package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/mentorhub/internal/auth"
	"github.com/hitoshi/mentorhub/internal/config"
	"github.com/hitoshi/mentorhub/internal/database"
	"github.com/hitoshi/mentorhub/internal/handler"
	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/logger"
	"github.com/hitoshi/mentorhub/internal/metrics"
	"github.com/hitoshi/mentorhub/internal/middleware"
	"github.com/hitoshi/mentorhub/internal/program"
	"github.com/hitoshi/mentorhub/internal/repository"
	"github.com/hitoshi/mentorhub/internal/security"
	"github.com/hitoshi/mentorhub/internal/user"
	"github.com/hitoshi/mentorhub/internal/worker/cleanup"
	"github.com/hitoshi/mentorhub/internal/worker/reconcile"
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

	if !logger.SetLevel(cfg.LogLevel) {
		slog.Warn("unknown log level, falling back to info", slog.String("log_level", cfg.LogLevel))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandMigratePasswords:
		return runMigratePasswords(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はコネクションプールを生成し、疎通を確認する。
// プールはプロセスごとに1つだけ生成する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newIdentityClient はサーキットブレーカー付きのIdPクライアントを生成する。
// ブレーカーの状態はメトリクスに反映する。
func newIdentityClient(cfg *config.Config, m metrics.MetricsCollector) *identity.GoTrueClient {
	return identity.NewGoTrueClient(
		&http.Client{Timeout: cfg.IdentityTimeout},
		identity.Config{
			BaseURL:        cfg.IdentityURL,
			AnonKey:        cfg.IdentityAnonKey,
			ServiceRoleKey: cfg.IdentityServiceRoleKey,
			Breaker:        identity.DefaultBreakerConfig(),
			OnBreakerStateChange: func(to gobreaker.State) {
				m.SetIdentityBreakerState(float64(to))
			},
		},
		slog.Default(),
	)
}

func cookieOptions(cfg *config.Config) identity.CookieOptions {
	return identity.CookieOptions{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	programRepo := repository.NewPostgresProgramRepo(db)
	videoRepo := repository.NewPostgresVideoRepo(db)
	resourceRepo := repository.NewPostgresResourceRepo(db)
	enrollmentRepo := repository.NewPostgresEnrollmentRepo(db)
	anomalyRepo := repository.NewPostgresAnomalyRepo(db)

	// 4. 認証
	logger := slog.Default()
	idp := newIdentityClient(cfg, collector)
	tokens := auth.NewTokenManager(cfg.SessionSecret, cfg.FallbackSessionTTL)
	anomalies := auth.NewAnomalyReporter(anomalyRepo, collector, logger)
	authService := auth.NewService(idp, userRepo, anomalies, tokens, collector, logger)
	resolver := auth.NewResolver(idp, tokens, logger)
	gate := auth.NewGate(userRepo, anomalies, collector, logger)

	// 5. ドメインサービス
	userService := user.NewService(userRepo, logger)
	programService := program.NewService(
		programRepo, videoRepo, resourceRepo, enrollmentRepo,
		security.NewSanitizer(), logger,
	)

	// 6. ルーターの構築
	cookies := cookieOptions(cfg)
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitSignIn))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		RouteGuard: middleware.NewRouteGuard(idp, middleware.RouteGuardConfig{
			ProtectedPrefixes: cfg.ProtectedPrefixes,
			Cookie:            cookies,
		}, collector, logger),
		SessionResolver:   resolver,
		Authorizer:        gate,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Cookies: cookies,
		Logger:  logger,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		AuthService:    authService,
		ProfileService: userService,
		ProgramService: programService,
		ContentAdmin:   programService,
		UserAdmin:      userService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
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
// 不整合記録のクリーンアップ（日次）とIdPとの突き合わせ（ReconcileInterval間隔）を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := slog.Default()
	collector := metrics.NewCollector(prometheus.NewRegistry())

	userRepo := repository.NewPostgresUserRepo(db)
	anomalies := auth.NewAnomalyReporter(repository.NewPostgresAnomalyRepo(db), collector, logger)
	cleanupJob := cleanup.NewCleanupJob(db, cfg.AnomalyRetentionDays, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("anomaly_retention_days", cleanupJob.RetentionDays),
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 突き合わせには管理APIキーが必要
	if cfg.IdentityServiceRoleKey == "" {
		slog.Warn("IDENTITY_SERVICE_ROLE_KEY is not set, reconciliation disabled")
		<-ctx.Done()
	} else {
		reconciler := reconcile.NewReconciler(newIdentityClient(cfg, collector), userRepo, anomalies, logger)
		reconciler.Start(ctx, cfg.ReconcileInterval)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runMigratePasswords は平文で保存された旧形式パスワードをbcryptハッシュへ移行する。
// 移行後も旧形式が残っている場合はエラーを返す。
func runMigratePasswords(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := auth.NewLegacyPasswordMigrator(
		repository.NewPostgresUserRepo(db),
		metrics.NopCollector{},
		slog.Default(),
	)

	result, err := migrator.Run(context.Background())
	if err != nil {
		return fmt.Errorf("password migration failed: %w", err)
	}
	if result.Remaining > 0 {
		return fmt.Errorf("password migration incomplete: %d legacy passwords remain", result.Remaining)
	}
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
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
