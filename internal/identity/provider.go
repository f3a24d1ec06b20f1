// Package identity は外部IdPとの認証連携を提供する。
// サインイン／サインアップ／トークン更新のRESTクライアントと、
// 認証状態変化の購読機構を含む。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foodaid/appcore/internal/model"
)

const (
	defaultBaseURL  = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenURL = "https://securetoken.googleapis.com/v1"

	// defaultExpirySkew はトークンを期限切れ扱いにする余裕時間。
	// 期限ぎりぎりのトークンをバックエンドに送って401になるのを避ける。
	defaultExpirySkew = 30 * time.Second
)

// ErrNotAuthenticated はサインインしていない状態でトークンを要求した場合のエラー。
var ErrNotAuthenticated = errors.New("not authenticated")

// Identity はIdPが発行したプリンシパルを表す。
// バックエンドのプロフィール（model.User）とは別物で、
// 認証状態の有無だけを示す。
type Identity struct {
	UID   string
	Email string
}

// Listener は認証状態の変化を受け取るコールバック。
// サインイン時は非nil、サインアウト時はnilのIdentityが渡される。
type Listener func(*Identity)

// TokenSource は各リクエスト直前に新鮮なベアラートークンを供給する。
// ゲートウェイが依存する唯一のインターフェース。
type TokenSource interface {
	// Token は有効なIDトークンを返す。期限切れが近い場合は更新してから返す。
	Token(ctx context.Context) (string, error)
}

// RefreshRecorder はトークン更新の結果を記録する。
type RefreshRecorder interface {
	RecordTokenRefresh(result string)
}

// Config はProviderの設定。
type Config struct {
	APIKey     string
	BaseURL    string        // テスト用にオーバーライド可能
	TokenURL   string        // テスト用にオーバーライド可能
	ExpirySkew time.Duration // 0の場合はデフォルト値を使用
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    RefreshRecorder // nil可
}

// credentials はIdPから発行された認証情報一式。
type credentials struct {
	uid          string
	email        string
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

// Provider は外部IdPのRESTクライアント。
// 現在の認証情報をプロセス内に1つだけ保持し、
// 状態変化をリスナーへ通知する。
type Provider struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	cred      *credentials
	listeners []Listener
}

// NewProvider はProviderを生成する。
func NewProvider(config Config) *Provider {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.ExpirySkew <= 0 {
		config.ExpirySkew = defaultExpirySkew
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Subscribe は認証状態変化のリスナーを登録し、現在の状態を即時通知する。
// プロセスの生存期間中は登録解除しない前提の単純な購読機構。
func (p *Provider) Subscribe(fn Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	current := p.currentIdentityLocked()
	p.mu.Unlock()

	fn(current)
}

// CurrentIdentity は現在のプリンシパルを返す。未認証の場合はnil。
func (p *Provider) CurrentIdentity() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentIdentityLocked()
}

func (p *Provider) currentIdentityLocked() *Identity {
	if p.cred == nil {
		return nil
	}
	return &Identity{UID: p.cred.uid, Email: p.cred.email}
}

// notify は登録済みリスナー全員に状態変化を通知する。ロック外で呼ぶこと。
func (p *Provider) notify(id *Identity) {
	p.mu.Lock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(id)
	}
}

// signInResponse はsignInWithPassword / signUp エンドポイントのレスポンス。
type signInResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"` // 秒数の文字列表現
}

// SignIn はメールアドレスとパスワードでサインインする。
// 成功すると認証情報を保持し、リスナーへ通知する。
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	var resp signInResponse
	if err := p.post(ctx, p.config.BaseURL+"/accounts:signInWithPassword", body, &resp); err != nil {
		return nil, err
	}

	id := p.storeCredentials(&resp)
	p.logger.Info("signed in",
		slog.String("uid", id.UID),
	)
	p.notify(id)
	return id, nil
}

// SignUp はIdPに新しいアカウントを作成してサインインする。
// 通常の登録フローはバックエンドの/auth/register経由だが、
// プロフィール未作成のままIdPアカウントだけ先に作る用途に使う。
func (p *Provider) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	var resp signInResponse
	if err := p.post(ctx, p.config.BaseURL+"/accounts:signUp", body, &resp); err != nil {
		return nil, err
	}

	id := p.storeCredentials(&resp)
	p.notify(id)
	return id, nil
}

// storeCredentials はサインインレスポンスから認証情報を保存する。
func (p *Provider) storeCredentials(resp *signInResponse) *Identity {
	expiresAt := time.Time{}
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil {
		expiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}

	p.mu.Lock()
	p.cred = &credentials{
		uid:          resp.LocalID,
		email:        resp.Email,
		idToken:      resp.IDToken,
		refreshToken: resp.RefreshToken,
		expiresAt:    expiresAt,
	}
	id := p.currentIdentityLocked()
	p.mu.Unlock()
	return id
}

// SignOut は認証情報を破棄し、リスナーへ未認証状態を通知する。
func (p *Provider) SignOut() {
	p.mu.Lock()
	wasSignedIn := p.cred != nil
	p.cred = nil
	p.mu.Unlock()

	if wasSignedIn {
		p.logger.Info("signed out")
		p.notify(nil)
	}
}

// SendPasswordReset はパスワードリセットメールの送信を要求する。
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	body := map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}
	return p.post(ctx, p.config.BaseURL+"/accounts:sendOobCode", body, nil)
}

// ChangePassword は現在のユーザーのパスワードを変更する。
func (p *Provider) ChangePassword(ctx context.Context, newPassword string) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"idToken":           token,
		"password":          newPassword,
		"returnSecureToken": true,
	}

	var resp signInResponse
	if err := p.post(ctx, p.config.BaseURL+"/accounts:update", body, &resp); err != nil {
		return err
	}
	if resp.IDToken != "" {
		p.storeCredentials(&resp)
	}
	return nil
}

// DeleteAccount はIdP上のアカウントを削除し、サインアウト状態にする。
// バックエンド側のプロフィール削除は別途APIで行う。
func (p *Provider) DeleteAccount(ctx context.Context) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	if err := p.post(ctx, p.config.BaseURL+"/accounts:delete", map[string]any{"idToken": token}, nil); err != nil {
		return err
	}
	p.SignOut()
	return nil
}

// Token は有効なIDトークンを返す。
// 保持中のトークンが期限切れに近い場合はリフレッシュトークンで更新する。
// 1ラウンドトリップ以上古いトークンを返さないことを保証する。
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.cred == nil {
		p.mu.Unlock()
		return "", ErrNotAuthenticated
	}

	expiresAt := p.cred.expiresAt
	if expiresAt.IsZero() {
		// 発行時刻情報を失った認証情報（復元時など）はトークン自体から期限を読む
		expiresAt = tokenExpiry(p.cred.idToken)
	}

	if time.Until(expiresAt) > p.config.ExpirySkew {
		token := p.cred.idToken
		p.mu.Unlock()
		return token, nil
	}

	refreshToken := p.cred.refreshToken
	p.mu.Unlock()

	return p.refresh(ctx, refreshToken)
}

// tokenExpiry はJWTのexpクレームを検証なしで読み取る。
// 読み取れない場合はゼロ値を返す（= 要リフレッシュ扱い）。
func tokenExpiry(idToken string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// refreshResponse はセキュアトークンエンドポイントのレスポンス。
type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// refresh はリフレッシュトークンでIDトークンを更新する。
// リフレッシュトークンが無効な場合はサインアウト状態に遷移する。
func (p *Provider) refresh(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}

	var resp refreshResponse
	if err := p.post(ctx, p.config.TokenURL+"/token", body, &resp); err != nil {
		p.recordRefresh("failure")

		var identityErr *model.IdentityError
		if errors.As(err, &identityErr) {
			// 無効化されたセッションは復旧不能なのでサインアウトさせる
			p.logger.Warn("refresh token rejected, signing out",
				slog.String("code", identityErr.Code),
			)
			p.SignOut()
		}
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	expiresAt := time.Time{}
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil {
		expiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}

	p.mu.Lock()
	if p.cred != nil {
		p.cred.idToken = resp.IDToken
		p.cred.refreshToken = resp.RefreshToken
		p.cred.expiresAt = expiresAt
		if resp.UserID != "" {
			p.cred.uid = resp.UserID
		}
	}
	p.mu.Unlock()

	p.recordRefresh("success")
	return resp.IDToken, nil
}

func (p *Provider) recordRefresh(result string) {
	if p.config.Metrics != nil {
		p.config.Metrics.RecordTokenRefresh(result)
	}
}

// identityErrorResponse はIdPのエラーレスポンス。
type identityErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post はIdPエンドポイントへJSONをPOSTし、レスポンスをoutにデコードする。
// APIキーはクエリパラメータとして付与される。
func (p *Provider) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?key="+p.config.APIKey, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp identityErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return &model.IdentityError{Code: errResp.Error.Message}
		}
		return fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// compile-time interface check
var _ TokenSource = (*Provider)(nil)
