// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/planboard/internal/config"
	"github.com/hitoshi/planboard/internal/handler"
	"github.com/hitoshi/planboard/internal/logger"
	"github.com/hitoshi/planboard/internal/metrics"
	"github.com/hitoshi/planboard/internal/middleware"
	"github.com/hitoshi/planboard/internal/remote"
	"github.com/hitoshi/planboard/internal/security"
	"github.com/hitoshi/planboard/internal/session"
	"github.com/hitoshi/planboard/internal/storage"
	"github.com/hitoshi/planboard/internal/transport"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, log, nil
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

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("remote_api_url", cfg.RemoteAPIURL),
	)

	return runServe(cfg, log)
}

// runServe はセッションゲートウェイサーバーモードで起動する。
// 永続化スロット・セッションストア・リフレッシュインターセプター・
// 上流クライアントをワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config, log *slog.Logger) error {
	// 1. セッション永続化スロット
	slots, err := storage.NewFileSlots(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	store := session.NewStore(slots)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リモートAPIクライアント
	// 認証クライアントは素のHTTPクライアントを使用する
	// （リフレッシュエンドポイント自体をインターセプトしないため）。
	authClient := remote.NewAuthClient(
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.RemoteAPIURL,
		log,
	)

	// 4. リフレッシュインターセプター
	interceptor := transport.NewInterceptor(
		http.DefaultTransport,
		store,
		authClient,
		collector,
		log,
		transport.Config{RefreshLeeway: cfg.RefreshLeeway},
	)
	interceptor.SetExpiredHook(func() {
		log.Warn("セッションが失効しました。再ログインが必要です")
	})

	// 5. ダッシュボードクライアント（インターセプター経由）
	dashboardClient := remote.NewDashboardClient(
		&http.Client{
			Transport: interceptor,
			Timeout:   cfg.RequestTimeout,
		},
		cfg.RemoteAPIURL,
	)

	// 6. セッションマネージャー
	manager := session.NewManager(store, authClient, dashboardClient, collector, log)

	// 7. 起動時のセッション復元（サーバー起動をブロックしない）
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	go func() {
		defer cancelRestore()
		manager.Restore(restoreCtx)
	}()

	// 8. ルーターの構築
	rateLimiterCfg := middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		LoginRate:       rate.Limit(float64(cfg.RateLimitLogin) / 60.0),
		LoginBurst:      cfg.RateLimitLogin,
		CleanupInterval: 5 * time.Minute,
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	var sanitizer handler.SanitizerInterface = security.NewContentSanitizer()
	if !cfg.SanitizeEnabled {
		sanitizer = security.NewNoopSanitizer()
	}

	deps := &handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		SessionService: manager,
		Snapshots:      manager,

		Forwarder: dashboardClient,
		Sanitizer: sanitizer,

		Metrics:         collector,
		MetricsGatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("session gateway starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	log.Info("shutting down session gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("session gateway stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// ローカルで稼働中のサーバーに対して/healthzを確認する。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
