// Package navigation はセッション状態から画面遷移を決定する。
// タブの可視判定は役割ベースで、非表示のタブも定義としては保持される
// （役割のリフレッシュで再表示できるようにするため）。
package navigation

import (
	"github.com/foodaid/appcore/internal/model"
	"github.com/foodaid/appcore/internal/session"
)

// State はルート画面の遷移先を表す。
type State int

const (
	// StateLoading はセッション解決中の起動画面。
	StateLoading State = iota
	// StateRedirectLogin は未認証のためログイン画面へ誘導する。
	StateRedirectLogin
	// StateRedirectCompleteProfile は認証済みだがプロフィール未登録のため
	// オンボーディング画面へ誘導する。
	StateRedirectCompleteProfile
	// StateShell はメインのタブシェルを表示する。
	StateShell
)

// String はStateの文字列表現を返す。
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateRedirectLogin:
		return "redirect_login"
	case StateRedirectCompleteProfile:
		return "redirect_complete_profile"
	case StateShell:
		return "shell"
	default:
		return "unknown"
	}
}

// Resolve はセッション状態からルート画面の遷移先を決定する。
func Resolve(snapshot session.Snapshot) State {
	if snapshot.Loading {
		return StateLoading
	}
	if snapshot.Identity == nil {
		return StateRedirectLogin
	}
	if snapshot.User == nil {
		return StateRedirectCompleteProfile
	}
	return StateShell
}

// Destination はタブシェル内の遷移先を表す。
type Destination struct {
	Name  string
	Route string
	Title string
	// Visible は指定の役割でこのタブを表示するかを返す。
	Visible func(role model.UserRole) bool
}

func allRoles(model.UserRole) bool { return true }

func onlyRole(want model.UserRole) func(model.UserRole) bool {
	return func(role model.UserRole) bool { return role == want }
}

// Tabs はタブシェルの全遷移先を定義順に返す。
// 非表示のタブもここには含まれる。表示判定はVisibleTabsで行う。
func Tabs() []Destination {
	return []Destination{
		{Name: "feed", Route: "/feed", Title: "フィード", Visible: allRoles},
		{Name: "new_post", Route: "/posts/new", Title: "新規投稿", Visible: onlyRole(model.RoleDonor)},
		{Name: "my_posts", Route: "/posts/me", Title: "自分の投稿", Visible: onlyRole(model.RoleDonor)},
		{Name: "my_reservations", Route: "/reservations", Title: "予約一覧", Visible: onlyRole(model.RoleReceiver)},
		{Name: "deliveries", Route: "/deliveries", Title: "配送", Visible: onlyRole(model.RoleLogistics)},
		{Name: "admin_users", Route: "/admin/users", Title: "ユーザー管理", Visible: onlyRole(model.RoleAdmin)},
		{Name: "admin_finance", Route: "/admin/finance", Title: "資金管理", Visible: onlyRole(model.RoleAdmin)},
		{Name: "messages", Route: "/messages", Title: "メッセージ", Visible: allRoles},
		{Name: "profile", Route: "/profile", Title: "プロフィール", Visible: allRoles},
	}
}

// VisibleTabs は指定の役割で表示するタブを定義順のまま返す。
func VisibleTabs(role model.UserRole) []Destination {
	var visible []Destination
	for _, d := range Tabs() {
		if d.Visible(role) {
			visible = append(visible, d)
		}
	}
	return visible
}
