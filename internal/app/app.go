package app

import (
	"context"
	"errors"
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
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/humanize/internal/auth"
	"github.com/hitoshi/humanize/internal/billing"
	"github.com/hitoshi/humanize/internal/config"
	"github.com/hitoshi/humanize/internal/contact"
	"github.com/hitoshi/humanize/internal/credit"
	"github.com/hitoshi/humanize/internal/database"
	"github.com/hitoshi/humanize/internal/handler"
	"github.com/hitoshi/humanize/internal/logger"
	"github.com/hitoshi/humanize/internal/metrics"
	"github.com/hitoshi/humanize/internal/middleware"
	"github.com/hitoshi/humanize/internal/project"
	"github.com/hitoshi/humanize/internal/repository"
	"github.com/hitoshi/humanize/internal/rewrite"
	"github.com/hitoshi/humanize/internal/security"
	"github.com/hitoshi/humanize/internal/user"
	"github.com/hitoshi/humanize/internal/worker/cleanup"
	"github.com/hitoshi/humanize/internal/worker/renewal"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// ログレベルはLOG_LEVEL（debug, info, warn, error）で指定する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		_, err := io.WriteString(w, Usage())
		return err
	}

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
		slog.String("completion_provider", cfg.CompletionProvider),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newRegistry はGo・プロセスメトリクスを含むPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
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
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	authLogRepo := repository.NewPostgresAuthLogRepo(db)
	creditRepo := repository.NewPostgresCreditRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	planRepo := repository.NewPostgresPlanRepo(db)
	paymentRepo := repository.NewPostgresPaymentRepo(db)
	contactRepo := repository.NewPostgresContactRepo(db)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 5. 補完クライアントと冪等性ストア
	completer, err := newCompleter(ctx, cfg, ssrfGuard, slog.Default())
	if err != nil {
		return err
	}

	store, closeStore, err := newIdempotencyStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 6. ドメインサービスの初期化
	var oauthProvider auth.OAuthProvider
	if cfg.GoogleOAuthEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	} else {
		slog.Info("google oauth is disabled")
	}

	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo, authLogRepo,
		auth.NewGuestTokenIssuer(cfg.SessionSecret, cfg.GuestTokenTTL),
		auth.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAge,
			SignupCredits: cfg.SignupCredits,
			GuestCredits:  cfg.GuestCredits,
		},
	)

	creditService := credit.NewService(creditRepo, cfg.GuestCredits, collector)
	rewriteService := rewrite.NewService(completer, creditService, store, collector, rewrite.Config{
		Policy:         completionPolicy(cfg),
		MaxInputChars:  cfg.RewriteMaxInputChars,
		Timeout:        cfg.CompletionTimeout,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
	projectService := project.NewService(projectRepo)
	billingService := billing.NewService(planRepo, paymentRepo)
	contactService := contact.NewService(contactRepo, sanitizer)
	userService := user.NewService(userRepo, sessionRepo)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(
		cfg.RateLimitGeneral, cfg.RateLimitRewrite, cfg.RateLimitPublic,
	).WithGuestPerHour(cfg.RateLimitGuest))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		PrincipalResolver: authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		RewriteService: rewriteService,
		MaxInputChars:  cfg.RewriteMaxInputChars,

		CreditService:  creditService,
		ProjectService: projectService,
		BillingService: billingService,
		UserService:    userService,
		ContactService: contactService,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	// WriteTimeoutは上流呼び出しの上限より長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CompletionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はctxがキャンセルされるまでHTTPサーバーを起動し、その後グレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クレジット再付与とクリーンアップのジョブを並行して実行する。
// ヘルスチェックとメトリクス用に /health と /metrics も公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続（ワーカーは同時接続数が少ない）
	db, err := database.Open(cfg.DatabaseURL, database.PoolOptions{MaxOpenConns: 4, MaxIdleConns: 2})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 2. ジョブの初期化
	creditService := credit.NewService(repository.NewPostgresCreditRepo(db), cfg.GuestCredits, collector)
	renewalScheduler := renewal.NewScheduler(creditService, slog.Default(), collector)

	cleanupJob := cleanup.NewCleanupJob(db, repository.NewPostgresSessionRepo(db), slog.Default(), collector)
	cleanupJob.RetentionDays = cfg.GuestRetentionDays

	slog.Info("worker starting",
		slog.Duration("renewal_interval", cfg.RenewalInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("guest_retention_days", cfg.GuestRetentionDays),
	)

	// 3. 各ジョブと運用サーバーを並行実行し、いずれかが失敗したら全体を止める
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		renewalScheduler.Start(gctx, cfg.RenewalInterval)
		return nil
	})

	g.Go(func() error {
		runPeriodically(gctx, cfg.CleanupInterval, func(ctx context.Context) {
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		})
		return nil
	})

	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("GET /health", handler.NewHealthHandler(db))
		mux.Handle("GET /metrics", metrics.Handler(reg))
		server := &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		return serveUntilDone(gctx, server, "worker ops server")
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runPeriodically は起動直後に1回、その後interval毎にfnを実行する。
// ctxがキャンセルされると戻る。
func runPeriodically(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
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
		slog.Uint64("version", uint64(version)),
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
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
