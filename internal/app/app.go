// Package app はアプリケーションの組み立てを行う。
// 全コンポーネントのワイヤリングはここに集約し、各パッケージは
// 自分の依存インターフェースだけを知る。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/foodaid/appcore/internal/alert"
	"github.com/foodaid/appcore/internal/api"
	"github.com/foodaid/appcore/internal/config"
	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/identity"
	"github.com/foodaid/appcore/internal/inbox"
	"github.com/foodaid/appcore/internal/logger"
	"github.com/foodaid/appcore/internal/metrics"
	"github.com/foodaid/appcore/internal/session"
	"github.com/foodaid/appcore/internal/storage"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// App は組み立て済みのアプリケーション本体。
// UI層はこの構造体のフィールドだけを参照する。
type App struct {
	Config   *config.Config
	Metrics  *metrics.Collector
	Identity *identity.Provider
	API      *api.Clients
	Storage  *storage.Client
	Session  *session.Store
	Inbox    *inbox.Poller
	Alerts   *alert.Presenter

	registry *prometheus.Registry
}

// New は全コンポーネントをワイヤリングしたAppを生成する。
//
// 通知ポーリングはセッションの認証状態に連動する。サインインで開始し、
// サインアウトで停止する。画面遷移の決定（internal/navigation）は
// 状態を持たない関数のため、ここでは組み立てない。
func New(cfg *config.Config) *App {
	log := slog.Default()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	idp := identity.NewProvider(identity.Config{
		APIKey:     cfg.IdentityAPIKey,
		BaseURL:    cfg.IdentityBaseURL,
		TokenURL:   cfg.IdentityTokenURL,
		ExpirySkew: cfg.TokenExpirySkew,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     log,
		Metrics:    collector,
	})

	gw := gateway.NewClient(gateway.Config{
		BaseURL:    cfg.APIBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Tokens:     idp,
		Logger:     log,
		Metrics:    collector,
		Rate:       cfg.RequestRate,
		Burst:      cfg.RequestBurst,
	})

	clients := api.NewClients(gw)

	store := session.NewStore(session.Config{
		Identity: idp,
		Profiles: clients.Auth,
		Logger:   log,
	})

	poller := inbox.NewPoller(inbox.Config{
		API:      clients.Notifications,
		Interval: cfg.PollInterval,
		Logger:   log,
		Metrics:  collector,
	})

	// 認証状態とポーリングの連動
	store.Subscribe(func(s session.Snapshot) {
		if s.Loading {
			return
		}
		if s.Identity != nil {
			poller.Start()
		} else {
			poller.Stop()
		}
	})

	storageClient := storage.NewClient(storage.Config{
		Bucket:  cfg.StorageBucket,
		BaseURL: cfg.StorageBaseURL,
		MaxSize: cfg.UploadMaxSize,
		Tokens:  idp,
		Logger:  log,
		Metrics: collector,
	})

	return &App{
		Config:   cfg,
		Metrics:  collector,
		Identity: idp,
		API:      clients,
		Storage:  storageClient,
		Session:  store,
		Inbox:    poller,
		Alerts:   alert.NewPresenter(),
		registry: registry,
	}
}

// Run はアプリケーションをフォアグラウンドで実行する。
// MetricsAddrが設定されている場合はメトリクスエンドポイントを公開する。
// SIGINTまたはSIGTERMを受信するとポーリングを停止して戻る。
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if a.Config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.registry))
		metricsServer = &http.Server{
			Addr:         a.Config.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			slog.Info("メトリクスサーバーを起動します",
				slog.String("addr", metricsServer.Addr),
			)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("メトリクスサーバーの起動に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	slog.Info("アプリケーションを起動しました",
		slog.String("api_base_url", a.Config.APIBaseURL),
		slog.Duration("poll_interval", a.Config.PollInterval),
	)

	<-ctx.Done()
	slog.Info("シャットダウンします...")

	a.Inbox.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown failed: %w", err)
		}
	}

	slog.Info("停止しました")
	return nil
}
