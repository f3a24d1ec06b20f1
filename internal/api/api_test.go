package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foodaid/appcore/internal/fakeapi"
	"github.com/foodaid/appcore/internal/gateway"
	"github.com/foodaid/appcore/internal/model"
)

// staticTokenSource は固定トークンを返すテスト用トークンソース。
type staticTokenSource struct {
	token string
}

func (s *staticTokenSource) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

// newTestEnv はfakeapiサーバーとAPIクライアント一式を生成する。
func newTestEnv(t *testing.T) (*fakeapi.Server, *Clients) {
	t.Helper()

	backend := fakeapi.NewServer()
	backend.ValidToken = "test-token"

	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	gw := gateway.NewClient(gateway.Config{
		BaseURL: ts.URL,
		Tokens:  &staticTokenSource{token: "test-token"},
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	return backend, NewClients(gw)
}

func TestAuthAPI_Register(t *testing.T) {
	_, clients := newTestEnv(t)

	user, err := clients.Auth.Register(context.Background(), model.RegisterRequest{
		Email:    "donor@example.com",
		Password: "secret123",
		Role:     model.RoleDonor,
		Name:     "テスト寄付者",
		Address:  "東京都千代田区1-1",
	})
	if err != nil {
		t.Fatalf("登録に失敗しました: %v", err)
	}
	if user.UserID == "" {
		t.Error("user_idが採番されていません")
	}
	if user.Role != model.RoleDonor {
		t.Errorf("role: got %v, want %v", user.Role, model.RoleDonor)
	}
	if user.VerificationStatus != model.VerificationPending {
		t.Errorf("verification_status: got %v, want %v", user.VerificationStatus, model.VerificationPending)
	}
}

func TestAuthAPI_Register_ValidationError(t *testing.T) {
	_, clients := newTestEnv(t)

	_, err := clients.Auth.Register(context.Background(), model.RegisterRequest{
		Email:    "",
		Password: "123",
	})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ValidationErrorを期待しましたが got %T", err)
	}
	// email, password, role, name, address の5項目が不足
	if len(ve.Fields) != 5 {
		t.Errorf("フィールドエラー数: got %d, want 5", len(ve.Fields))
	}
}

func TestAuthAPI_Register_DuplicateEmail(t *testing.T) {
	backend, clients := newTestEnv(t)
	backend.AddUser(model.User{Email: "taken@example.com", Role: model.RoleDonor})

	_, err := clients.Auth.Register(context.Background(), model.RegisterRequest{
		Email:    "taken@example.com",
		Password: "secret123",
		Role:     model.RoleDonor,
		Name:     "重複",
		Address:  "住所",
	})
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("BackendErrorを期待しましたが got %T", err)
	}
	if be.Status != 400 {
		t.Errorf("status: got %d, want 400", be.Status)
	}
}

func TestAuthAPI_Me(t *testing.T) {
	backend, clients := newTestEnv(t)
	u := backend.AddUser(model.User{Email: "me@example.com", Role: model.RoleReceiver, Name: "受取側"})
	backend.CurrentUserID = u.UserID

	got, err := clients.Auth.Me(context.Background())
	if err != nil {
		t.Fatalf("プロフィール取得に失敗しました: %v", err)
	}
	if got.UserID != u.UserID {
		t.Errorf("user_id: got %v, want %v", got.UserID, u.UserID)
	}
}

func TestAuthAPI_Me_NoProfile(t *testing.T) {
	_, clients := newTestEnv(t)

	_, err := clients.Auth.Me(context.Background())
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("BackendErrorを期待しましたが got %T", err)
	}
	if be.Status != 404 {
		t.Errorf("status: got %d, want 404", be.Status)
	}
}

func TestAuthAPI_UpdateProfile(t *testing.T) {
	backend, clients := newTestEnv(t)
	u := backend.AddUser(model.User{Email: "me@example.com", Role: model.RoleDonor, Name: "旧名"})
	backend.CurrentUserID = u.UserID

	got, err := clients.Auth.UpdateProfile(context.Background(), model.ProfileUpdateRequest{Name: "新名"})
	if err != nil {
		t.Fatalf("プロフィール更新に失敗しました: %v", err)
	}
	if got.Name != "新名" {
		t.Errorf("name: got %v, want 新名", got.Name)
	}
	// 空フィールドは既存値を保持する
	if got.Email != "me@example.com" {
		t.Errorf("email: got %v, want me@example.com", got.Email)
	}
}

func TestPostsAPI_CreateAndList(t *testing.T) {
	backend, clients := newTestEnv(t)
	donor := backend.AddUser(model.User{
		Email:              "donor@example.com",
		Role:               model.RoleDonor,
		VerificationStatus: model.VerificationApproved,
	})
	backend.CurrentUserID = donor.UserID

	post, err := clients.Posts.Create(context.Background(), model.FoodPostCreate{
		Title:          "パン10個",
		Quantity:       "10個",
		Address:        "東京都新宿区2-2",
		Expiry:         time.Now().Add(48 * time.Hour),
		DeliveryMethod: model.DeliveryPickup,
	})
	if err != nil {
		t.Fatalf("投稿作成に失敗しました: %v", err)
	}
	if post.Status != model.PostAvailable {
		t.Errorf("status: got %v, want %v", post.Status, model.PostAvailable)
	}
	if post.DonorID != donor.UserID {
		t.Errorf("donor_id: got %v, want %v", post.DonorID, donor.UserID)
	}

	posts, err := clients.Posts.Available(context.Background(), nil)
	if err != nil {
		t.Fatalf("一覧取得に失敗しました: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("投稿数: got %d, want 1", len(posts))
	}
}

func TestPostsAPI_Create_Unverified(t *testing.T) {
	backend, clients := newTestEnv(t)
	donor := backend.AddUser(model.User{Email: "donor@example.com", Role: model.RoleDonor})
	backend.CurrentUserID = donor.UserID

	_, err := clients.Posts.Create(context.Background(), model.FoodPostCreate{
		Title:    "パン",
		Quantity: "1個",
		Address:  "住所",
		Expiry:   time.Now().Add(time.Hour),
	})
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("BackendErrorを期待しましたが got %T", err)
	}
	if be.Status != 403 {
		t.Errorf("status: got %d, want 403", be.Status)
	}
}

func TestPostsAPI_Reserve(t *testing.T) {
	backend, clients := newTestEnv(t)
	receiver := backend.AddUser(model.User{Email: "r@example.com", Role: model.RoleReceiver})
	backend.CurrentUserID = receiver.UserID
	post := backend.AddPost(model.FoodPost{Title: "野菜セット", DonorID: "donor-1"})

	got, err := clients.Posts.Reserve(context.Background(), post.PostID)
	if err != nil {
		t.Fatalf("予約に失敗しました: %v", err)
	}
	if got.Status != model.PostReserved {
		t.Errorf("status: got %v, want %v", got.Status, model.PostReserved)
	}
	if got.ReceiverID != receiver.UserID {
		t.Errorf("receiver_id: got %v, want %v", got.ReceiverID, receiver.UserID)
	}

	// 予約済みの投稿は再予約できない
	_, err = clients.Posts.Reserve(context.Background(), post.PostID)
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("BackendErrorを期待しましたが got %T", err)
	}
	if be.Status != 400 {
		t.Errorf("status: got %d, want 400", be.Status)
	}
}

func TestReservationsAPI_Mine(t *testing.T) {
	backend, clients := newTestEnv(t)
	receiver := backend.AddUser(model.User{Email: "r@example.com", Role: model.RoleReceiver})
	backend.CurrentUserID = receiver.UserID
	post := backend.AddPost(model.FoodPost{Title: "お弁当", DonorID: "donor-1"})

	if _, err := clients.Posts.Reserve(context.Background(), post.PostID); err != nil {
		t.Fatalf("予約に失敗しました: %v", err)
	}

	reservations, err := clients.Reservations.Mine(context.Background())
	if err != nil {
		t.Fatalf("予約一覧取得に失敗しました: %v", err)
	}
	if len(reservations) != 1 {
		t.Fatalf("予約数: got %d, want 1", len(reservations))
	}
	if reservations[0].PostDetails == nil {
		t.Fatal("post_detailsが埋め込まれていません")
	}
	if reservations[0].PostDetails.Title != "お弁当" {
		t.Errorf("title: got %v, want お弁当", reservations[0].PostDetails.Title)
	}
}

func TestLogisticsAPI_DeliveryFlow(t *testing.T) {
	backend, clients := newTestEnv(t)
	driver := backend.AddUser(model.User{Email: "d@example.com", Role: model.RoleLogistics})
	backend.CurrentUserID = driver.UserID
	post := backend.AddPost(model.FoodPost{
		Title:          "冷凍食品",
		DonorID:        "donor-1",
		Status:         model.PostReserved,
		DeliveryMethod: model.DeliveryDelivery,
	})

	available, err := clients.Logistics.AvailableDeliveries(context.Background())
	if err != nil {
		t.Fatalf("配送可能一覧の取得に失敗しました: %v", err)
	}
	if len(available) != 1 {
		t.Fatalf("配送可能数: got %d, want 1", len(available))
	}

	accepted, err := clients.Logistics.Accept(context.Background(), post.PostID)
	if err != nil {
		t.Fatalf("配送受諾に失敗しました: %v", err)
	}
	if accepted.LogisticsID != driver.UserID {
		t.Errorf("logistics_id: got %v, want %v", accepted.LogisticsID, driver.UserID)
	}

	inTransit, err := clients.Logistics.UpdateStatus(context.Background(), post.PostID, model.PostInTransit)
	if err != nil {
		t.Fatalf("ステータス更新に失敗しました: %v", err)
	}
	if inTransit.Status != model.PostInTransit {
		t.Errorf("status: got %v, want %v", inTransit.Status, model.PostInTransit)
	}
	if inTransit.PickedUpAt == nil {
		t.Error("picked_up_atが設定されていません")
	}

	delivered, err := clients.Logistics.UpdateStatus(context.Background(), post.PostID, model.PostDelivered)
	if err != nil {
		t.Fatalf("ステータス更新に失敗しました: %v", err)
	}
	if delivered.DeliveredAt == nil {
		t.Error("delivered_atが設定されていません")
	}

	// 配達完了後はアクティブ一覧から消える
	active, err := clients.Logistics.ActiveJobs(context.Background())
	if err != nil {
		t.Fatalf("アクティブ一覧の取得に失敗しました: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("アクティブ数: got %d, want 0", len(active))
	}
}

func TestLogisticsAPI_UpdateStatus_InvalidStatus(t *testing.T) {
	_, clients := newTestEnv(t)

	_, err := clients.Logistics.UpdateStatus(context.Background(), "post-1", model.PostCollected)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ValidationErrorを期待しましたが got %T", err)
	}
}

func TestLogisticsAPI_Accept_AlreadyTaken(t *testing.T) {
	backend, clients := newTestEnv(t)
	driver := backend.AddUser(model.User{Email: "d@example.com", Role: model.RoleLogistics})
	backend.CurrentUserID = driver.UserID
	post := backend.AddPost(model.FoodPost{
		Title:          "弁当",
		Status:         model.PostReserved,
		DeliveryMethod: model.DeliveryDelivery,
		LogisticsID:    "other-driver",
	})

	_, err := clients.Logistics.Accept(context.Background(), post.PostID)
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("BackendErrorを期待しましたが got %T", err)
	}
	if be.Status != 400 {
		t.Errorf("status: got %d, want 400", be.Status)
	}
}

func TestNotificationsAPI_ListAndMarkRead(t *testing.T) {
	backend, clients := newTestEnv(t)
	user := backend.AddUser(model.User{Email: "u@example.com", Role: model.RoleReceiver})
	backend.CurrentUserID = user.UserID
	n := backend.AddNotification(model.Notification{
		UserID: user.UserID,
		Title:  "予約されました",
		Body:   "あなたの投稿が予約されました。",
	})
	backend.AddNotification(model.Notification{UserID: "someone-else", Title: "他人宛"})

	notifications, err := clients.Notifications.List(context.Background())
	if err != nil {
		t.Fatalf("通知一覧の取得に失敗しました: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("通知数: got %d, want 1", len(notifications))
	}
	if notifications[0].Read {
		t.Error("新規通知が既読になっています")
	}

	if err := clients.Notifications.MarkRead(context.Background(), n.NotificationID); err != nil {
		t.Fatalf("既読化に失敗しました: %v", err)
	}
	if got := backend.Notification(n.NotificationID); !got.Read {
		t.Error("サーバー側で既読になっていません")
	}
}

func TestPaymentsAPI_CreateOrder(t *testing.T) {
	_, clients := newTestEnv(t)

	order, err := clients.Payments.CreateOrder(context.Background(), model.DonationRequest{
		Amount: 500,
		Email:  "donor@example.com",
	})
	if err != nil {
		t.Fatalf("オーダー作成に失敗しました: %v", err)
	}
	if order.ApproveLink() == "" {
		t.Error("承認リンクがありません")
	}
}

func TestPaymentsAPI_CreateOrder_InvalidAmount(t *testing.T) {
	_, clients := newTestEnv(t)

	_, err := clients.Payments.CreateOrder(context.Background(), model.DonationRequest{Amount: 0})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ValidationErrorを期待しましたが got %T", err)
	}
}

func TestPaymentsAPI_Capture(t *testing.T) {
	_, clients := newTestEnv(t)

	result, err := clients.Payments.CaptureOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("キャプチャに失敗しました: %v", err)
	}
	if result.Status != "COMPLETED" {
		t.Errorf("status: got %v, want COMPLETED", result.Status)
	}
}

func TestAdminAPI_VerifyFlow(t *testing.T) {
	backend, clients := newTestEnv(t)
	admin := backend.AddUser(model.User{Email: "a@example.com", Role: model.RoleAdmin, VerificationStatus: model.VerificationApproved})
	backend.CurrentUserID = admin.UserID
	pending := backend.AddUser(model.User{Email: "p@example.com", Role: model.RoleDonor})

	users, err := clients.Admin.PendingUsers(context.Background())
	if err != nil {
		t.Fatalf("未確認ユーザー一覧の取得に失敗しました: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("未確認ユーザー数: got %d, want 1", len(users))
	}

	verified, err := clients.Admin.Verify(context.Background(), model.VerificationUpdate{
		UserID: pending.UserID,
		Status: model.VerificationApproved,
	})
	if err != nil {
		t.Fatalf("確認処理に失敗しました: %v", err)
	}
	if verified.VerificationStatus != model.VerificationApproved {
		t.Errorf("verification_status: got %v, want %v", verified.VerificationStatus, model.VerificationApproved)
	}

	// 承認後、未確認一覧は空になる
	users, err = clients.Admin.PendingUsers(context.Background())
	if err != nil {
		t.Fatalf("未確認ユーザー一覧の取得に失敗しました: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("未確認ユーザー数: got %d, want 0", len(users))
	}
}

func TestAdminAPI_Verify_RejectRequiresReason(t *testing.T) {
	_, clients := newTestEnv(t)

	_, err := clients.Admin.Verify(context.Background(), model.VerificationUpdate{
		UserID: "user-1",
		Status: model.VerificationRejected,
	})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ValidationErrorを期待しましたが got %T", err)
	}
}

func TestAdminAPI_BalanceAndDisburse(t *testing.T) {
	backend, clients := newTestEnv(t)
	user := backend.AddUser(model.User{Email: "r@example.com", Role: model.RoleReceiver, VerificationStatus: model.VerificationApproved})
	backend.SetBalance(model.SystemBalance{Balance: 100, Currency: "usd"})

	balance, err := clients.Admin.Balance(context.Background())
	if err != nil {
		t.Fatalf("残高取得に失敗しました: %v", err)
	}
	if balance.Balance != 100 {
		t.Errorf("balance: got %v, want 100", balance.Balance)
	}

	if err := clients.Admin.Disburse(context.Background(), model.DisbursementRequest{
		UserID: user.UserID,
		Amount: 60,
	}); err != nil {
		t.Fatalf("払い出しに失敗しました: %v", err)
	}

	balance, err = clients.Admin.Balance(context.Background())
	if err != nil {
		t.Fatalf("残高取得に失敗しました: %v", err)
	}
	if balance.Balance != 40 {
		t.Errorf("balance: got %v, want 40", balance.Balance)
	}

	// 残高超過の払い出しは拒否される
	err = clients.Admin.Disburse(context.Background(), model.DisbursementRequest{
		UserID: user.UserID,
		Amount: 1000,
	})
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("BackendErrorを期待しましたが got %T", err)
	}
}

func TestAPI_InvalidToken(t *testing.T) {
	backend := fakeapi.NewServer()
	backend.ValidToken = "correct-token"

	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	gw := gateway.NewClient(gateway.Config{
		BaseURL: ts.URL,
		Tokens:  &staticTokenSource{token: "wrong-token"},
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	clients := NewClients(gw)

	_, err := clients.Auth.Me(context.Background())
	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("BackendErrorを期待しましたが got %T", err)
	}
	if be.Status != 401 {
		t.Errorf("status: got %d, want 401", be.Status)
	}
}
