// Package fakeapi はテスト用のインメモリFoodAidバックエンドを提供する。
// 実バックエンドと同じルーティング・エラーボディ形式でレスポンスを返し、
// APIクライアントとポーラーの結合テストから利用される。
package fakeapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/foodaid/appcore/internal/model"
)

// Server はインメモリのFoodAidバックエンド。
// 全状態はミューテックスで保護され、テストごとに独立して生成する。
type Server struct {
	mu sync.Mutex

	// ValidToken が空でない場合、認証必須エンドポイントは
	// このトークン以外のリクエストを401で拒否する。
	ValidToken string

	// CurrentUserID は認証済みリクエストの操作主体。
	CurrentUserID string

	users         map[string]*model.User
	posts         map[string]*model.FoodPost
	reservations  map[string]*model.Reservation
	notifications map[string]*model.Notification
	balance       model.SystemBalance
}

// NewServer は空のServerを生成する。
func NewServer() *Server {
	return &Server{
		users:         make(map[string]*model.User),
		posts:         make(map[string]*model.FoodPost),
		reservations:  make(map[string]*model.Reservation),
		notifications: make(map[string]*model.Notification),
		balance:       model.SystemBalance{Balance: 0, Currency: "usd"},
	}
}

// --- シードヘルパー ---

// AddUser はユーザーを登録して返す。IDが空の場合は採番する。
func (s *Server) AddUser(u model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	if u.VerificationStatus == "" {
		u.VerificationStatus = model.VerificationPending
	}
	s.users[u.UserID] = &u
	return &u
}

// AddPost は投稿を登録して返す。IDが空の場合は採番する。
func (s *Server) AddPost(p model.FoodPost) *model.FoodPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.PostID == "" {
		p.PostID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.PostAvailable
	}
	s.posts[p.PostID] = &p
	return &p
}

// AddNotification は通知を登録して返す。IDが空の場合は採番する。
func (s *Server) AddNotification(n model.Notification) *model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.NotificationID == "" {
		n.NotificationID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notifications[n.NotificationID] = &n
	return &n
}

// SetBalance は寄付金プール残高を設定する。
func (s *Server) SetBalance(b model.SystemBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = b
}

// Notification は通知をIDで返す（テストの検証用）。
func (s *Server) Notification(id string) *model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notifications[id]; ok {
		copied := *n
		return &copied
	}
	return nil
}

// Handler は全ルーティングを構成したhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// --- 認証不要のルート ---
	r.Post("/auth/register", s.handleRegister)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/me", s.handleMe)
			r.Put("/me", s.handleUpdateProfile)
			r.Post("/me/fcm-token", s.handleFCMToken)
			r.Delete("/me", s.handleDeleteMe)
		})

		r.Route("/api/v1/posts", func(r chi.Router) {
			r.Get("/", s.handleListPosts)
			r.Post("/", s.handleCreatePost)
			r.Get("/me", s.handleMyPosts)
			r.Put("/{id}/reserve", s.handleReserve)
			r.Put("/{id}/collected", s.handleCollected)
		})

		r.Get("/reservations/me", s.handleMyReservations)

		r.Route("/logistics", func(r chi.Router) {
			r.Get("/available", s.handleAvailableDeliveries)
			r.Get("/active", s.handleActiveJobs)
			r.Post("/{id}/accept", s.handleAcceptDelivery)
			r.Put("/{id}/status", s.handleDeliveryStatus)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Put("/{id}/read", s.handleMarkRead)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/create-payment", s.handleCreatePayment)
			r.Post("/{orderID}/capture", s.handleCapturePayment)
			r.Get("/admin/balance", s.handleBalance)
			r.Post("/admin/disburse", s.handleDisburse)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/users", s.handleListUsers)
			r.Get("/users/pending", s.handlePendingUsers)
			r.Post("/users/verify", s.handleVerifyUser)
		})
	})

	return r
}

// requireAuth はベアラートークンを検証するミドルウェア。
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		valid := s.ValidToken
		s.mu.Unlock()

		if valid != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+valid {
				writeDetail(w, http.StatusUnauthorized, "Invalid authentication credentials.")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDetail はFastAPI形式のエラーボディを書き込む。
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// currentUser は操作主体のユーザーを返す。未設定の場合はnil。
func (s *Server) currentUser() *model.User {
	if s.CurrentUserID == "" {
		return nil
	}
	return s.users[s.CurrentUserID]
}

// --- 認証・プロフィール ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body.")
		return
	}

	s.mu.Lock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, req.Email) {
			s.mu.Unlock()
			writeDetail(w, http.StatusBadRequest, "The email address is already in use by another account.")
			return
		}
	}
	user := &model.User{
		UserID:             uuid.NewString(),
		Email:              req.Email,
		Role:               req.Role,
		Name:               req.Name,
		Address:            req.Address,
		PhoneNumber:        req.PhoneNumber,
		VerificationStatus: model.VerificationPending,
		CreatedAt:          time.Now(),
	}
	s.users[user.UserID] = user
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	user := s.currentUser()
	s.mu.Unlock()

	if user == nil {
		writeDetail(w, http.StatusNotFound, "User profile not found. Please register.")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req model.ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body.")
		return
	}

	s.mu.Lock()
	user := s.currentUser()
	if user == nil {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "User profile not found. Please register.")
		return
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Address != "" {
		user.Address = req.Address
	}
	if req.PhoneNumber != "" {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.BankName != "" {
		user.BankName = req.BankName
	}
	if req.BankAccountNumber != "" {
		user.BankAccountNumber = req.BankAccountNumber
	}
	if req.VerificationDocumentURL != "" {
		user.VerificationDocumentURL = req.VerificationDocumentURL
	}
	copied := *user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &copied)
}

func (s *Server) handleFCMToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FCMToken string `json:"fcm_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FCMToken == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "fcm_token is required.")
		return
	}

	s.mu.Lock()
	if user := s.currentUser(); user != nil {
		user.FCMToken = req.FCMToken
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.users, s.CurrentUserID)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// --- 食品投稿 ---

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	posts := make([]*model.FoodPost, 0, len(s.posts))
	for _, p := range s.posts {
		if p.Status == model.PostAvailable {
			posts = append(posts, p)
		}
	}
	s.mu.Unlock()

	sortPosts(posts)
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req model.FoodPostCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body.")
		return
	}

	s.mu.Lock()
	user := s.currentUser()
	if user == nil {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "User profile not found. Please register.")
		return
	}
	if user.VerificationStatus != model.VerificationApproved {
		s.mu.Unlock()
		writeDetail(w, http.StatusForbidden, "Account pending verification.")
		return
	}
	post := &model.FoodPost{
		PostID:         uuid.NewString(),
		Title:          req.Title,
		Description:    req.Description,
		Quantity:       req.Quantity,
		Address:        req.Address,
		Expiry:         req.Expiry,
		ImageURL:       req.ImageURL,
		DeliveryMethod: req.DeliveryMethod,
		DonorID:        user.UserID,
		Status:         model.PostAvailable,
		CreatedAt:      time.Now(),
	}
	s.posts[post.PostID] = post
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleMyPosts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var posts []*model.FoodPost
	for _, p := range s.posts {
		if p.DonorID == s.CurrentUserID {
			posts = append(posts, p)
		}
	}
	s.mu.Unlock()

	sortPosts(posts)
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Post not found.")
		return
	}
	if post.Status != model.PostAvailable {
		writeDetail(w, http.StatusBadRequest, "This post is no longer available.")
		return
	}

	now := time.Now()
	post.Status = model.PostReserved
	post.ReceiverID = s.CurrentUserID
	post.ReservedAt = &now

	reservation := &model.Reservation{
		ReservationID: uuid.NewString(),
		PostID:        post.PostID,
		ReceiverID:    s.CurrentUserID,
		DonorID:       post.DonorID,
		Timestamp:     now,
		Status:        "Active",
	}
	s.reservations[reservation.ReservationID] = reservation

	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleCollected(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Post not found.")
		return
	}
	post.Status = model.PostCollected
	writeJSON(w, http.StatusOK, post)
}

// --- 予約 ---

func (s *Server) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var reservations []*model.Reservation
	for _, res := range s.reservations {
		if res.ReceiverID == s.CurrentUserID || res.DonorID == s.CurrentUserID {
			copied := *res
			if post, ok := s.posts[res.PostID]; ok {
				postCopy := *post
				copied.PostDetails = &postCopy
			}
			reservations = append(reservations, &copied)
		}
	}
	s.mu.Unlock()

	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].Timestamp.After(reservations[j].Timestamp)
	})
	writeJSON(w, http.StatusOK, reservations)
}

// --- 配送 ---

func (s *Server) handleAvailableDeliveries(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var posts []*model.FoodPost
	for _, p := range s.posts {
		if p.Status == model.PostReserved && p.DeliveryMethod == model.DeliveryDelivery && p.LogisticsID == "" {
			posts = append(posts, p)
		}
	}
	s.mu.Unlock()

	sortPosts(posts)
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleActiveJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var posts []*model.FoodPost
	for _, p := range s.posts {
		if p.LogisticsID == s.CurrentUserID && p.Status != model.PostDelivered {
			posts = append(posts, p)
		}
	}
	s.mu.Unlock()

	sortPosts(posts)
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleAcceptDelivery(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Post not found.")
		return
	}
	if post.LogisticsID != "" {
		writeDetail(w, http.StatusBadRequest, "This delivery has already been accepted by another driver.")
		return
	}
	if post.DeliveryMethod != model.DeliveryDelivery {
		writeDetail(w, http.StatusBadRequest, "This post is set for Pickup, not Delivery.")
		return
	}

	post.LogisticsID = s.CurrentUserID
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")
	newStatus := model.PostStatus(r.URL.Query().Get("new_status"))

	if newStatus != model.PostInTransit && newStatus != model.PostDelivered {
		writeDetail(w, http.StatusBadRequest, "Invalid status update for driver.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Post not found.")
		return
	}
	if post.LogisticsID != s.CurrentUserID {
		writeDetail(w, http.StatusForbidden, "You are not the assigned driver for this shipment.")
		return
	}

	now := time.Now()
	post.Status = newStatus
	switch newStatus {
	case model.PostInTransit:
		post.PickedUpAt = &now
	case model.PostDelivered:
		post.DeliveredAt = &now
	}
	writeJSON(w, http.StatusOK, post)
}

// --- 通知 ---

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var notifications []*model.Notification
	for _, n := range s.notifications {
		if n.UserID == s.CurrentUserID {
			copied := *n
			notifications = append(notifications, &copied)
		}
	}
	s.mu.Unlock()

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, notifications)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Notification not found.")
		return
	}
	if n.UserID != s.CurrentUserID {
		writeDetail(w, http.StatusForbidden, "Not your notification.")
		return
	}
	n.Read = true
	w.WriteHeader(http.StatusNoContent)
}

// --- 決済 ---

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req model.DonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "Donation amount must be greater than zero.")
		return
	}

	order := model.PaymentOrder{
		OrderID: uuid.NewString(),
		Status:  "CREATED",
		Links: []model.PaymentLink{
			{Href: "https://pay.example.com/approve/" + uuid.NewString(), Rel: "approve", Method: "GET"},
		},
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCapturePayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	s.mu.Lock()
	s.balance.Balance += 10
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, model.CaptureResult{ID: orderID, Status: "COMPLETED"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	balance := s.balance
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleDisburse(w http.ResponseWriter, r *http.Request) {
	var req model.DisbursementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[req.UserID]; !ok {
		writeDetail(w, http.StatusNotFound, "User not found.")
		return
	}
	if req.Amount > s.balance.Balance {
		writeDetail(w, http.StatusBadRequest, "Insufficient funds.")
		return
	}
	s.balance.Balance -= req.Amount
	w.WriteHeader(http.StatusNoContent)
}

// --- 管理者 ---

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handlePendingUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var users []*model.User
	for _, u := range s.users {
		if u.VerificationStatus == model.VerificationPending {
			users = append(users, u)
		}
	}
	s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	var req model.VerificationUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[req.UserID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found.")
		return
	}
	user.VerificationStatus = req.Status
	user.VerificationRejectionReason = req.RejectionReason
	writeJSON(w, http.StatusOK, user)
}

// sortPosts は投稿を作成日時の新しい順に並べる。
func sortPosts(posts []*model.FoodPost) {
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
