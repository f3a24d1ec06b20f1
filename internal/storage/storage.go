// Package storage は画像アップロードとダウンロードURLの構築を提供する。
// 本人確認書類と食品投稿の写真をオブジェクトストレージへ格納する。
package storage

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

	"github.com/foodaid/appcore/internal/identity"
	"github.com/foodaid/appcore/internal/model"
	"github.com/foodaid/appcore/internal/security"
)

const defaultMaxSize = 5 * 1024 * 1024 // 5MiB

// Recorder はアップロードのメトリクスを記録する。
type Recorder interface {
	RecordUpload(result string)
}

// Config はClientの設定。
type Config struct {
	// Bucket はアップロード先のバケット名。
	Bucket string
	// BaseURL はストレージAPIのベースURL。
	BaseURL string
	// MaxSize はアップロードの最大バイト数。0以下でデフォルト値を使用する。
	MaxSize int64
	// Tokens はアップロード認証用のトークンソース。
	Tokens identity.TokenSource
	// Guard はURL指定アップロード時のSSRF防止。nilの場合は内部で生成する。
	Guard      security.SSRFGuardService
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    Recorder // nil可
}

// Client は画像ストレージのクライアント。
type Client struct {
	bucket     string
	baseURL    string
	maxSize    int64
	tokens     identity.TokenSource
	guard      security.SSRFGuardService
	httpClient *http.Client
	safeClient *http.Client
	logger     *slog.Logger
	metrics    Recorder
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	maxSize := config.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	guard := config.Guard
	if guard == nil {
		guard = security.NewSSRFGuard()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		bucket:     config.Bucket,
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		maxSize:    maxSize,
		tokens:     config.Tokens,
		guard:      guard,
		httpClient: httpClient,
		safeClient: guard.NewSafeClient(30 * time.Second),
		logger:     logger,
		metrics:    config.Metrics,
	}
}

// uploadResponse はアップロードAPIのレスポンス。
type uploadResponse struct {
	Name           string `json:"name"`
	DownloadTokens string `json:"downloadTokens"`
}

// Upload は画像をアップロードしてダウンロードURLを返す。
// オブジェクト名は衝突を避けるためフォルダ配下にランダムなIDで採番する。
func (c *Client) Upload(ctx context.Context, folder string, data []byte, contentType string) (string, error) {
	if int64(len(data)) > c.maxSize {
		c.recordUpload("rejected")
		return "", fmt.Errorf("image exceeds maximum size of %d bytes", c.maxSize)
	}
	if !strings.HasPrefix(contentType, "image/") {
		c.recordUpload("rejected")
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	ext := extensionFor(contentType)
	object := folder + "/" + uuid.NewString() + ext

	uploadURL := fmt.Sprintf("%s/v0/b/%s/o?uploadType=media&name=%s",
		c.baseURL, c.bucket, url.QueryEscape(object))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.recordUpload("failure")
			return "", fmt.Errorf("failed to get token for upload: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordUpload("failure")
		c.logger.Error("画像アップロードに失敗しました",
			slog.String("object", object),
			slog.String("error", err.Error()),
		)
		return "", &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordUpload("failure")
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordUpload("failure")
		c.logger.Error("ストレージがアップロードを拒否しました",
			slog.String("object", object),
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("storage rejected upload with status %d", resp.StatusCode)
	}

	var result uploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.recordUpload("failure")
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}

	c.recordUpload("success")
	c.logger.Info("画像をアップロードしました",
		slog.String("object", object),
		slog.Int("size", len(data)),
	)
	return c.DownloadURL(object, result.DownloadTokens), nil
}

// UploadFromURL は外部URLの画像を取得してアップロードする。
// ユーザー入力のURLはSSRF防止の検証を通してから取得する。
func (c *Client) UploadFromURL(ctx context.Context, rawURL, folder string) (string, error) {
	if err := c.guard.ValidateURL(rawURL); err != nil {
		c.recordUpload("rejected")
		return "", fmt.Errorf("unsafe image URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := c.safeClient.Do(req)
	if err != nil {
		c.recordUpload("failure")
		return "", &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordUpload("failure")
		return "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	// 最大サイズ+1バイトまで読み、超過を検出する
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		c.recordUpload("failure")
		return "", fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > c.maxSize {
		c.recordUpload("rejected")
		return "", fmt.Errorf("image exceeds maximum size of %d bytes", c.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return c.Upload(ctx, folder, data, contentType)
}

// DownloadURL はオブジェクトの公開ダウンロードURLを構築する。
func (c *Client) DownloadURL(object, token string) string {
	u := fmt.Sprintf("%s/v0/b/%s/o/%s?alt=media", c.baseURL, c.bucket, url.PathEscape(object))
	if token != "" {
		u += "&token=" + url.QueryEscape(token)
	}
	return u
}

func (c *Client) recordUpload(result string) {
	if c.metrics != nil {
		c.metrics.RecordUpload(result)
	}
}

// extensionFor はContent-Typeに対応するファイル拡張子を返す。
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
