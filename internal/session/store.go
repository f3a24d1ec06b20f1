// Package session は認証プリンシパルとバックエンドプロフィールを束ねた
// セッション状態を管理する。アプリ全体の「誰としてログインしているか」の
// 単一の情報源であり、画面遷移の判定（internal/navigation）はここを参照する。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/foodaid/appcore/internal/identity"
	"github.com/foodaid/appcore/internal/model"
)

// ProfileFetcher はバックエンドからプロフィールを取得する。
// 実体はapi.AuthAPI。
type ProfileFetcher interface {
	Me(ctx context.Context) (*model.User, error)
}

// IdentitySource は認証状態の購読元。実体はidentity.Provider。
type IdentitySource interface {
	Subscribe(fn identity.Listener)
}

// Snapshot はセッション状態の不変なスナップショット。
type Snapshot struct {
	// Identity は認証済みプリンシパル。未認証の場合はnil。
	Identity *identity.Identity
	// User はバックエンドのプロフィール。認証済みでもプロフィール未登録
	// （オンボーディング未完了）の場合はnil。
	User *model.User
	// Loading は初回のセッション解決が進行中かどうか。
	// 起動直後とサインイン直後のプロフィール取得中にのみtrueになる。
	Loading bool
}

// Listener はセッション状態変化の通知を受け取る。
type Listener func(Snapshot)

// Config はStoreの設定。
type Config struct {
	Identity IdentitySource
	Profiles ProfileFetcher
	Logger   *slog.Logger
}

// Store はセッション状態を保持する。
// 認証状態の変化（サインイン・サインアウト・トークン失効）を購読し、
// 変化のたびにバックエンドのプロフィールを解決してリスナーへ通知する。
type Store struct {
	profiles ProfileFetcher
	logger   *slog.Logger

	mu        sync.Mutex
	identity  *identity.Identity
	user      *model.User
	loading   bool
	listeners []Listener

	bootOnce  sync.Once
	bootReady chan struct{}
}

// NewStore はStoreを生成し、認証状態の購読を開始する。
// 購読開始時点の状態が即時通知されるため、生成直後から状態は有効。
func NewStore(config Config) *Store {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		profiles:  config.Profiles,
		logger:    logger,
		bootReady: make(chan struct{}),
	}
	config.Identity.Subscribe(s.onIdentityChange)
	return s
}

// BootReady は初回のセッション解決が完了すると閉じられるチャネルを返す。
// 起動画面はこのチャネルを待ってからナビゲーションを確定する。
// 一度閉じられた後は二度と開かない。
func (s *Store) BootReady() <-chan struct{} {
	return s.bootReady
}

// Current は現在のセッション状態を返す。
func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// CurrentUser は現在のプロフィールを返す。未解決・未認証の場合はnil。
func (s *Store) CurrentUser() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// IsLoading は初回のセッション解決が進行中かどうかを返す。
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Identity: s.identity,
		User:     s.user,
		Loading:  s.loading,
	}
}

// Subscribe はセッション状態変化のリスナーを登録し、現在の状態を即時通知する。
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	current := s.snapshotLocked()
	s.mu.Unlock()

	fn(current)
}

// onIdentityChange は認証状態の変化を処理する。
//
// 未認証への遷移は即時に反映する。認証済みへの遷移はプロフィール取得を
// 伴うため、Loading=trueを通知してから同期的に解決する。プロフィールが
// 404（未登録）の場合はUser=nilのまま確定し、オンボーディングへの誘導は
// ナビゲーション層が判定する。
func (s *Store) onIdentityChange(id *identity.Identity) {
	if id == nil {
		s.mu.Lock()
		s.identity = nil
		s.user = nil
		s.loading = false
		snapshot := s.snapshotLocked()
		s.mu.Unlock()

		s.markBootReady()
		s.notify(snapshot)
		return
	}

	s.mu.Lock()
	s.identity = id
	s.loading = true
	loadingSnapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(loadingSnapshot)

	user := s.fetchProfile(context.Background())

	s.mu.Lock()
	// 解決中にサインアウトされていたら結果を破棄する
	if s.identity == nil || s.identity.UID != id.UID {
		s.mu.Unlock()
		s.markBootReady()
		return
	}
	s.user = user
	s.loading = false
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.markBootReady()
	s.notify(snapshot)
}

// fetchProfile はプロフィールを取得する。未登録・失敗はnilを返す。
func (s *Store) fetchProfile(ctx context.Context) *model.User {
	user, err := s.profiles.Me(ctx)
	if err != nil {
		var be *model.BackendError
		if errors.As(err, &be) && be.Status == 404 {
			s.logger.Info("プロフィール未登録のためオンボーディングが必要です")
			return nil
		}
		s.logger.Error("プロフィール取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return user
}

// RefreshProfile はプロフィールを明示的に再取得する。
// 役割や確認状態の変更はサーバー側で行われるため、反映はこの明示的な
// リフレッシュに限られる。取得に成功した場合のみ状態を更新する。
func (s *Store) RefreshProfile(ctx context.Context) (*model.User, error) {
	s.mu.Lock()
	if s.identity == nil {
		s.mu.Unlock()
		return nil, identity.ErrNotAuthenticated
	}
	uid := s.identity.UID
	s.mu.Unlock()

	user, err := s.profiles.Me(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// 取得中にサインアウトや別ユーザーでのサインインがあった場合は反映しない
	if s.identity == nil || s.identity.UID != uid {
		s.mu.Unlock()
		return user, nil
	}
	s.user = user
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return user, nil
}

// SetUser はプロフィール更新系APIの結果を反映する。
// 更新済みプロフィールをサーバーから受け取った呼び出し側が使用する。
func (s *Store) SetUser(user *model.User) {
	s.mu.Lock()
	if s.identity == nil {
		s.mu.Unlock()
		return
	}
	s.user = user
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *Store) markBootReady() {
	s.bootOnce.Do(func() {
		close(s.bootReady)
	})
}

// notify は登録済みリスナー全員に状態変化を通知する。ロック外で呼ぶこと。
func (s *Store) notify(snapshot Snapshot) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
