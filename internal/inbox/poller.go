// Package inbox は通知受信箱のポーリングとローカル状態を管理する。
// サインイン中のみ一定間隔でバックエンドから通知一覧を取得し、
// 取得のたびにローカルの一覧を丸ごと置き換える。
package inbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foodaid/appcore/internal/model"
	"github.com/foodaid/appcore/internal/security"
)

const defaultInterval = 30 * time.Second

// NotificationAPI は通知エンドポイントのクライアント。実体はapi.NotificationsAPI。
type NotificationAPI interface {
	List(ctx context.Context) ([]model.Notification, error)
	MarkRead(ctx context.Context, notificationID string) error
}

// Recorder はポーリングのメトリクスを記録する。
type Recorder interface {
	RecordPollCycle()
	RecordPollFailure()
	RecordMarkReadFailure()
}

// Listener は通知一覧の変化を受け取る。
type Listener func([]model.Notification)

// Config はPollerの設定。
type Config struct {
	API      NotificationAPI
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  Recorder // nil可
}

// Poller は通知受信箱のポーラー。
// StartとStopは冪等で、セッションの認証状態変化に合わせて呼ばれる。
type Poller struct {
	api       NotificationAPI
	interval  time.Duration
	logger    *slog.Logger
	metrics   Recorder
	sanitizer security.NotificationSanitizerService

	mu        sync.Mutex
	items     []model.Notification
	listeners []Listener
	cancel    context.CancelFunc
}

// NewPoller はPollerを生成する。
func NewPoller(config Config) *Poller {
	interval := config.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		api:       config.API,
		interval:  interval,
		logger:    logger,
		metrics:   config.Metrics,
		sanitizer: security.NewNotificationSanitizer(),
	}
}

// Start はポーリングループを開始する。起動直後に1回実行し、
// 以降は一定間隔で繰り返す。すでに実行中の場合は何もしない。
func (p *Poller) Start() {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Info("通知ポーリングを開始しました",
		slog.Duration("interval", p.interval),
	)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.pollOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.pollOnce(ctx)
			}
		}
	}()
}

// Stop はポーリングループを停止し、ローカルの一覧を破棄する。
// 実行中でない場合は何もしない。
//
// ポーリング中のトークン失効がサインアウトを誘発し、認証状態リスナー経由で
// ポーリングループ自身からStopが呼び戻されることがある。そのためループの
// 終了を待ち合わせてはならない。キャンセル済みコンテキストを持つ取得結果は
// pollOnceが破棄するので、ループの残存が一覧へ反映されることはない。
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	p.mu.Lock()
	p.items = nil
	p.mu.Unlock()

	p.logger.Info("通知ポーリングを停止しました")
	p.notify()
}

// pollOnce は通知一覧を1回取得してローカルの一覧を置き換える。
// 取得失敗は記録するだけで、既存の一覧は保持したまま次の周期を待つ。
func (p *Poller) pollOnce(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.RecordPollCycle()
	}

	notifications, err := p.api.List(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordPollFailure()
		}
		p.logger.Warn("通知一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	for i := range notifications {
		notifications[i].Title = p.sanitizer.Sanitize(notifications[i].Title)
		notifications[i].Body = p.sanitizer.Sanitize(notifications[i].Body)
	}

	p.mu.Lock()
	if ctx.Err() != nil {
		// 取得中にStopされた周期の結果は捨てる
		p.mu.Unlock()
		return
	}
	p.items = notifications
	p.mu.Unlock()
	p.notify()
}

// Refresh は周期を待たずに即時1回ポーリングする。
// プルリフレッシュ操作から呼ばれる。
func (p *Poller) Refresh(ctx context.Context) {
	p.pollOnce(ctx)
}

// Notifications は現在の通知一覧のコピーを返す。
func (p *Poller) Notifications() []model.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]model.Notification, len(p.items))
	copy(items, p.items)
	return items
}

// UnreadCount は未読通知の数を返す。一覧から都度導出し、別管理のカウンタは持たない。
func (p *Poller) UnreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, n := range p.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead は通知を既読にする。
//
// ローカルの一覧を先に書き換えてから（楽観的更新）サーバーへ反映する。
// サーバー側の反映に失敗してもロールバックはしない。通知の既読状態の
// 不整合は次回以降のポーリングで解消されるため許容する。
func (p *Poller) MarkRead(ctx context.Context, notificationID string) {
	p.mu.Lock()
	for i := range p.items {
		if p.items[i].NotificationID == notificationID {
			p.items[i].Read = true
			break
		}
	}
	p.mu.Unlock()
	p.notify()

	if err := p.api.MarkRead(ctx, notificationID); err != nil {
		if p.metrics != nil {
			p.metrics.RecordMarkReadFailure()
		}
		p.logger.Warn("通知の既読化に失敗しました",
			slog.String("notification_id", notificationID),
			slog.String("error", err.Error()),
		)
	}
}

// Subscribe は通知一覧変化のリスナーを登録し、現在の一覧を即時通知する。
func (p *Poller) Subscribe(fn Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	items := make([]model.Notification, len(p.items))
	copy(items, p.items)
	p.mu.Unlock()

	fn(items)
}

// notify は登録済みリスナー全員に現在の一覧を通知する。ロック外で呼ぶこと。
func (p *Poller) notify() {
	p.mu.Lock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	items := make([]model.Notification, len(p.items))
	copy(items, p.items)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(items)
	}
}
