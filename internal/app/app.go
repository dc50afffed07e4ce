package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/hitoshi/campusevent/internal/auth"
	"github.com/hitoshi/campusevent/internal/cache"
	"github.com/hitoshi/campusevent/internal/config"
	"github.com/hitoshi/campusevent/internal/database"
	"github.com/hitoshi/campusevent/internal/event"
	"github.com/hitoshi/campusevent/internal/feedback"
	"github.com/hitoshi/campusevent/internal/handler"
	"github.com/hitoshi/campusevent/internal/logger"
	"github.com/hitoshi/campusevent/internal/metrics"
	"github.com/hitoshi/campusevent/internal/middleware"
	"github.com/hitoshi/campusevent/internal/notify"
	"github.com/hitoshi/campusevent/internal/registration"
	"github.com/hitoshi/campusevent/internal/repository"
	"github.com/hitoshi/campusevent/internal/security"
	"github.com/hitoshi/campusevent/internal/stats"
	"github.com/hitoshi/campusevent/internal/user"
	"github.com/hitoshi/campusevent/internal/worker/cleanup"
	"github.com/hitoshi/campusevent/internal/worker/reminder"
)

const (
	// cleanupInterval はクリーンアップジョブの実行間隔。
	cleanupInterval = 24 * time.Hour
	// webhookAttempts はWebhook送信の最大試行回数。
	webhookAttempts = 3
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

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
		slog.String("summary", cmd.Summary()),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// repositories はPostgreSQLリポジトリの組。
type repositories struct {
	users         repository.UserRepository
	events        repository.EventRepository
	registrations repository.RegistrationRepository
	feedback      repository.FeedbackRepository
}

func newRepositories(db *sql.DB) *repositories {
	return &repositories{
		users:         repository.NewPostgresUserRepo(db),
		events:        repository.NewPostgresEventRepo(db),
		registrations: repository.NewPostgresRegistrationRepo(db),
		feedback:      repository.NewPostgresFeedbackRepo(db),
	}
}

// newSenders は設定に応じて通知チャネルを構築する。
// Webhook URLはSSRFガードで検証し、不正な場合は起動を中止する。
func newSenders(cfg *config.Config, guard security.SSRFGuardService) ([]notify.Sender, error) {
	var senders []notify.Sender

	if cfg.MailEnabled() {
		senders = append(senders, notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}))
	}

	if cfg.NotifyWebhookURL != "" {
		if err := guard.ValidateURL(cfg.NotifyWebhookURL); err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_WEBHOOK_URL: %w", err)
		}
		webhook := notify.NewWebhookSender(cfg.NotifyWebhookURL, guard.NewSafeClient(cfg.NotifyTimeout))
		senders = append(senders, notify.NewRetryingSender(webhook, webhookAttempts))
	}

	return senders, nil
}

func channelNames(senders []notify.Sender) []string {
	names := make([]string, 0, len(senders))
	for _, s := range senders {
		names = append(names, s.Channel())
	}
	return names
}

// newMetrics はプロセス専用のレジストリにメトリクスを登録する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, metrics.NewCollector(registry)
}

// newWorkerMetricsServer はワーカープロセスのメトリクスを公開するHTTPサーバーを返す。
func newWorkerMetricsServer(port string, registry *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler(registry))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// buildRouter はserveモードの全依存関係をワイヤリングしてルーターを返す。
// 戻り値の関数でバックグラウンド処理を停止し、配信中の通知を待つ。
func buildRouter(cfg *config.Config, db *sql.DB) (http.Handler, func(context.Context), error) {
	// 1. リポジトリ
	repos := newRepositories(db)

	// 2. 横断的なサービス
	registry, collector := newMetrics()
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	codec, err := auth.NewTokenCodec([]byte(cfg.TokenSecret))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	senders, err := newSenders(cfg, ssrfGuard)
	if err != nil {
		return nil, nil, err
	}
	dispatcher := notify.NewDispatcher(senders,
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithRecorder(collector),
	)
	slog.Info("notification channels configured",
		slog.Any("channels", channelNames(senders)),
	)
	store := cache.NewMemory(time.Minute, cache.WithObserver(collector))

	// 3. ドメインサービス
	authService := auth.NewService(repos.users, codec)
	userService := user.NewService(repos.users)
	eventService := event.NewService(repos.events, repos.registrations, sanitizer, dispatcher, store, cfg.CacheTTL)
	regService := registration.NewService(repos.events, repos.registrations, dispatcher, store)
	feedbackService := feedback.NewService(repos.events, repos.registrations, repos.feedback, sanitizer)
	statsService := stats.NewService(repos.users, repos.events, repos.registrations, repos.feedback, store, cfg.CacheTTL)

	// 4. ルーター
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitLogin))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(registry),
		HealthChecker:     db,
		TokenDecoder:      codec,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    limiter,
		TracerProvider: otel.GetTracerProvider(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},
		UserService:         userService,
		EventService:        eventService,
		EventOwners:         eventService,
		RegistrationService: regService,
		FeedbackService:     feedbackService,
		StatsService:        statsService,
	})

	shutdown := func(ctx context.Context) {
		limiter.Stop()
		store.Stop()
		if !dispatcher.Wait(ctx) {
			slog.Warn("pending notifications were abandoned at shutdown")
		}
	}
	return router, shutdown, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, shutdownDeps, err := buildRouter(cfg, db)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	shutdownDeps(shutdownCtx)

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// リマインダージョブとクリーンアップジョブを実行し、ctxのキャンセルで停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	repos := newRepositories(db)
	registry, collector := newMetrics()

	senders, err := newSenders(cfg, security.NewSSRFGuard())
	if err != nil {
		return err
	}
	// ワーカーは1件ずつ配信を終えてから送信済みを記録する
	dispatcher := notify.NewDispatcher(senders,
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithRecorder(collector),
		notify.WithSynchronousDelivery(),
	)

	reminderJob := reminder.NewJob(repos.events, repos.registrations, dispatcher, collector,
		slog.Default(), cfg.ReminderLeadTime)
	cleanupJob := cleanup.NewCleanupJob(repos.events, collector, slog.Default(), cfg.EventRetentionDays)

	slog.Info("worker starting",
		slog.Duration("reminder_interval", cfg.ReminderInterval),
		slog.Duration("reminder_lead_time", cfg.ReminderLeadTime),
		slog.Int("event_retention_days", cfg.EventRetentionDays),
		slog.Any("channels", channelNames(senders)),
	)

	// メトリクスの公開に失敗してもジョブは継続する
	metricsServer := newWorkerMetricsServer(cfg.WorkerMetricsPort, registry)
	go func() {
		slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server failed", slog.String("error", err.Error()))
		}
	}()

	// クリーンアップジョブを日次でバックグラウンド実行
	done := make(chan struct{})
	go func() {
		defer close(done)
		cleanupJob.Start(ctx, cleanupInterval)
	}()

	// リマインダージョブをメインgoroutineで実行（ブロッキング）
	reminderJob.Start(ctx, cfg.ReminderInterval)
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker metrics server shutdown failed", slog.String("error", err.Error()))
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

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := "http://" + net.JoinHostPort("localhost", port) + "/health"
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
