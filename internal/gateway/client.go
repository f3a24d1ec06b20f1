// Package gateway はバックエンドAPIへの共有HTTPクライアントを提供する。
// ベアラートークンの付与、失敗の一様なロギング、エラー分類を
// 1箇所に集約し、全フィーチャーAPIモジュールがここに依存する。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/foodaid/appcore/internal/identity"
	"github.com/foodaid/appcore/internal/model"
)

// Recorder はリクエストメトリクスを記録する。
type Recorder interface {
	RecordAPIRequest(method string, statusCode int)
	RecordAPILatency(duration time.Duration)
}

// Config はClientの設定。
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     identity.TokenSource // nil可（未認証クライアント）
	Logger     *slog.Logger
	Metrics    Recorder // nil可
	Rate       float64  // req/sec。0以下で制限なし
	Burst      int
}

// Client はバックエンドAPIの共有クライアント。
// プロセス内に1つだけ生成し、全フィーチャーAPIモジュールで共有する。
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     identity.TokenSource
	logger     *slog.Logger
	metrics    Recorder
	limiter    *rate.Limiter
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if config.Rate > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.Rate), burst)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     config.Tokens,
		logger:     logger,
		metrics:    config.Metrics,
		limiter:    limiter,
	}
}

// Get はGETリクエストを送り、レスポンスJSONをoutにデコードする。
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post はPOSTリクエストを送り、レスポンスJSONをoutにデコードする。
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Put はPUTリクエストを送り、レスポンスJSONをoutにデコードする。
func (c *Client) Put(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// PutQuery はクエリパラメータ付きのPUTリクエストを送る。
func (c *Client) PutQuery(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodPut, path, query, nil, out)
}

// Delete はDELETEリクエストを送る。
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Do はHTTPリクエストを実行する。
//
// 送信前の割り込み処理: アウトバウンドレート制限を待ち、リクエストIDを採番し、
// トークンソースから毎回新鮮なベアラートークンを取得して付与する。
// トークン取得の失敗はログに残し、リクエストは未認証のまま送信する
// （サーバー側が401で拒否することを期待する）。
//
// 受信後の割り込み処理: 失敗は一様にログへ記録し、元のエラー詳細を
// 保持したまま分類済みエラーとして返す。
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.attachToken(ctx, req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.logger.Error("APIリクエストが失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		c.record(method, 0, latency)
		return &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	c.record(method, resp.StatusCode, latency)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		be := model.ParseBackendError(resp.StatusCode, respBody)
		c.logger.Error("APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("detail", be.Message()),
		)
		return be
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response body: %w", err)
		}
	}
	return nil
}

// attachToken はトークンソースから新鮮なトークンを取得して付与する。
// トークンはキャッシュせず毎回取得する。1ラウンドトリップ分の
// 非同期ホップを追加するが、古いトークンを送らないことを優先する。
func (c *Client) attachToken(ctx context.Context, req *http.Request) {
	if c.tokens == nil {
		return
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("トークン取得に失敗したため未認証でリクエストします",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func (c *Client) record(method string, status int, latency time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordAPIRequest(method, status)
	c.metrics.RecordAPILatency(latency)
}
