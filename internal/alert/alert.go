// Package alert はアプリ全体で共有する単一スロットのアラート表示を管理する。
// 同時に表示できるアラートは1つだけで、新しい表示要求は前の要求を上書きする。
package alert

import (
	"sync"

	"github.com/foodaid/appcore/internal/model"
)

// Kind はアラートの種別を表す。表示側の色分けに使う。
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
)

// Action はアラートのボタンを表す。
type Action struct {
	Label string
	// OnPress はボタン押下時の処理。nilの場合は閉じるだけ。
	OnPress func()
}

// Alert は表示中のアラートを表す。
type Alert struct {
	Title   string
	Message string
	Kind    Kind
	Actions []Action
}

// Listener はアラート表示状態の変化を受け取る。非表示への遷移はnilで通知される。
type Listener func(*Alert)

// Presenter は単一スロットのアラート表示状態を保持する。
type Presenter struct {
	mu        sync.Mutex
	current   *Alert
	listeners []Listener
}

// NewPresenter はPresenterを生成する。
func NewPresenter() *Presenter {
	return &Presenter{}
}

// Show はアラートを表示する。表示中のアラートがあれば上書きする。
// 上書きされた側の未確定のアクションは破棄される。
func (p *Presenter) Show(a Alert) {
	if a.Kind == "" {
		a.Kind = KindInfo
	}
	if len(a.Actions) == 0 {
		a.Actions = []Action{{Label: "OK"}}
	}
	p.mu.Lock()
	p.current = &a
	p.mu.Unlock()
	p.notify(&a)
}

// ShowError はエラーをユーザー向けメッセージに変換して表示する。
func (p *Presenter) ShowError(err error) {
	p.Show(Alert{
		Title:   "エラー",
		Message: model.UserMessage(err),
		Kind:    KindError,
	})
}

// Hide はアラートを閉じる。表示中でない場合は何もしない。
func (p *Presenter) Hide() {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.mu.Unlock()
	p.notify(nil)
}

// Confirm は指定インデックスのアクションを実行してアラートを閉じる。
// 範囲外のインデックスは閉じる操作として扱う。
func (p *Presenter) Confirm(index int) {
	p.mu.Lock()
	current := p.current
	p.current = nil
	p.mu.Unlock()

	if current == nil {
		return
	}
	p.notify(nil)

	if index >= 0 && index < len(current.Actions) {
		if fn := current.Actions[index].OnPress; fn != nil {
			fn()
		}
	}
}

// Current は表示中のアラートを返す。非表示の場合はnil。
func (p *Presenter) Current() *Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe はアラート表示状態のリスナーを登録し、現在の状態を即時通知する。
func (p *Presenter) Subscribe(fn Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	current := p.current
	p.mu.Unlock()

	fn(current)
}

// notify は登録済みリスナー全員に状態変化を通知する。ロック外で呼ぶこと。
func (p *Presenter) notify(a *Alert) {
	p.mu.Lock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(a)
	}
}
