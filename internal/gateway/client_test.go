package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foodaid/appcore/internal/model"
)

// mockTokenSource はTokenSourceのテスト用モック。
type mockTokenSource struct {
	tokenFunc func(ctx context.Context) (string, error)
	calls     atomic.Int32
}

func (m *mockTokenSource) Token(ctx context.Context) (string, error) {
	m.calls.Add(1)
	if m.tokenFunc != nil {
		return m.tokenFunc(ctx)
	}
	return "test-token", nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens *mockTokenSource, logBuf *bytes.Buffer) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	if logBuf == nil {
		logBuf = &bytes.Buffer{}
	}
	cfg := Config{
		BaseURL: srv.URL,
		Logger:  newTestLogger(logBuf),
	}
	if tokens != nil {
		cfg.Tokens = tokens
	}
	return NewClient(cfg)
}

func TestDo_AttachesBearerTokenFreshPerRequest(t *testing.T) {
	var gotAuth []string
	tokens := &mockTokenSource{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}, tokens, nil)

	for i := 0; i < 3; i++ {
		if err := c.Get(context.Background(), "/auth/me", nil, nil); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}

	if n := tokens.calls.Load(); n != 3 {
		t.Errorf("トークンはリクエストごとに取得されること: calls = %d, want 3", n)
	}
	for _, auth := range gotAuth {
		if auth != "Bearer test-token" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer test-token")
		}
	}
}

func TestDo_TokenFailure_ProceedsUnauthenticated(t *testing.T) {
	var gotAuth string
	tokens := &mockTokenSource{
		tokenFunc: func(ctx context.Context) (string, error) {
			return "", errors.New("refresh failed")
		},
	}
	var logBuf bytes.Buffer
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}, tokens, &logBuf)

	if err := c.Get(context.Background(), "/api/v1/posts/", nil, nil); err != nil {
		t.Fatalf("トークン失敗でもリクエストは送信されること: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, 未認証で送信されること", gotAuth)
	}
	if !strings.Contains(logBuf.String(), "refresh failed") {
		t.Error("トークン取得失敗がログに記録されること")
	}
}

func TestDo_SetsRequestIDHeader(t *testing.T) {
	ids := map[string]bool{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			t.Error("X-Request-Id が付与されること")
		}
		ids[id] = true
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}, nil, nil)

	for i := 0; i < 2; i++ {
		if err := c.Get(context.Background(), "/", nil, nil); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if len(ids) != 2 {
		t.Errorf("リクエストIDはリクエストごとに一意であること: %v", ids)
	}
}

func TestDo_DecodesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewEncoder(w).Encode(map[string]any{
			"user_id": "u-1", "email": "a@example.com", "role": "Donor",
			"name": "Aki", "address": "Osaka", "verification_status": "Approved",
		}); err != nil {
			t.Errorf("encode failed: %v", err)
		}
	}, nil, nil)

	var user model.User
	if err := c.Get(context.Background(), "/auth/me", nil, &user); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if user.UserID != "u-1" {
		t.Errorf("UserID = %q, want %q", user.UserID, "u-1")
	}
	if user.Role != model.RoleDonor {
		t.Errorf("Role = %q, want %q", user.Role, model.RoleDonor)
	}
}

func TestDo_BackendError_PreservesDetail(t *testing.T) {
	var logBuf bytes.Buffer
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		if _, err := w.Write([]byte(`{"detail": "Account pending verification."}`)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}, nil, &logBuf)

	err := c.Post(context.Background(), "/api/v1/posts/", map[string]any{"title": "Bread"}, nil)

	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %T, want *model.BackendError", err)
	}
	if be.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", be.Status)
	}
	if be.Message() != "Account pending verification." {
		t.Errorf("Message() = %q", be.Message())
	}
	if !strings.Contains(logBuf.String(), "http_status") {
		t.Error("エラーステータスがログに記録されること")
	}
}

func TestDo_ValidationErrorArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		if _, err := w.Write([]byte(`{"detail": [
			{"loc": ["body", "title"], "msg": "field required"},
			{"loc": ["body", "quantity"], "msg": "field required"}
		]}`)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}, nil, nil)

	err := c.Post(context.Background(), "/api/v1/posts/", map[string]any{}, nil)

	var be *model.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %T, want *model.BackendError", err)
	}
	if got := be.Message(); got != "field required\nfield required" {
		t.Errorf("Message() = %q", got)
	}
}

func TestDo_TransportError_ClassifiedAsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 接続拒否を起こす

	var logBuf bytes.Buffer
	c := NewClient(Config{BaseURL: srv.URL, Logger: newTestLogger(&logBuf)})

	err := c.Get(context.Background(), "/auth/me", nil, nil)

	var ne *model.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %T, want *model.NetworkError", err)
	}
	if ne.Err == nil {
		t.Error("元のエラーが保持されること")
	}
	if logBuf.Len() == 0 {
		t.Error("通信エラーがログに記録されること")
	}
}

func TestDo_NoContentResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil, nil)

	var out map[string]any
	if err := c.Put(context.Background(), "/notifications/n-1/read", nil, &out); err != nil {
		t.Fatalf("204レスポンスはエラーにならないこと: %v", err)
	}
}

// mockRecorder はRecorderのテスト用モック。
type mockRecorder struct {
	statuses  []int
	latencies int
}

func (m *mockRecorder) RecordAPIRequest(method string, statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockRecorder) RecordAPILatency(d time.Duration) {
	m.latencies++
}

func TestDo_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		if _, err := w.Write([]byte(`{"detail": "Post not found."}`)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	rec := &mockRecorder{}
	c := NewClient(Config{
		BaseURL: srv.URL,
		Logger:  newTestLogger(&bytes.Buffer{}),
		Metrics: rec,
	})

	_ = c.Get(context.Background(), "/api/v1/posts/missing", nil, nil)

	if len(rec.statuses) != 1 || rec.statuses[0] != http.StatusNotFound {
		t.Errorf("statuses = %v, want [404]", rec.statuses)
	}
	if rec.latencies != 1 {
		t.Errorf("latencies = %d, want 1", rec.latencies)
	}
}

func TestDo_RateLimiter_AllowsBurst(t *testing.T) {
	var served atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("write failed: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL: srv.URL,
		Logger:  newTestLogger(&bytes.Buffer{}),
		Rate:    100,
		Burst:   10,
	})

	for i := 0; i < 5; i++ {
		if err := c.Get(context.Background(), "/", nil, nil); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if n := served.Load(); n != 5 {
		t.Errorf("served = %d, want 5", n)
	}
}
