// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// defaultAPIBaseURL はAPI_BASE_URL未設定時のフォールバック。
// Androidエミュレーターからホストマシンのローカルバックエンドに
// 到達するためのループバックアドレスを指す。
const defaultAPIBaseURL = "http://10.0.2.2:8000"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Identity Provider
	IdentityAPIKey   string
	IdentityBaseURL  string // テスト用に差し替え可能
	IdentityTokenURL string // テスト用に差し替え可能

	// Storage
	StorageBucket  string
	StorageBaseURL string // テスト用に差し替え可能

	// Maps
	MapsAPIKey string

	// Notification polling
	PollInterval time.Duration

	// Outbound rate limit
	RequestRate  float64 // req/sec
	RequestBurst int

	// Upload
	UploadMaxSize int64

	// Token refresh
	TokenExpirySkew time.Duration

	// Metrics
	MetricsAddr string // 空文字列で無効
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")
	if cfg.IdentityAPIKey == "" {
		missing = append(missing, "IDENTITY_API_KEY")
	}

	cfg.StorageBucket = os.Getenv("STORAGE_BUCKET")
	if cfg.StorageBucket == "" {
		missing = append(missing, "STORAGE_BUCKET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.APIBaseURL = getEnvString("API_BASE_URL", defaultAPIBaseURL)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.IdentityBaseURL = getEnvString("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com/v1")
	cfg.IdentityTokenURL = getEnvString("IDENTITY_TOKEN_URL", "https://securetoken.googleapis.com/v1")
	cfg.StorageBaseURL = getEnvString("STORAGE_BASE_URL", "https://firebasestorage.googleapis.com")
	cfg.MetricsAddr = getEnvString("METRICS_ADDR", "")
	cfg.MapsAPIKey = getEnvString("MAPS_API_KEY", "")
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 30*time.Second)
	cfg.RequestRate = getEnvFloat("REQUEST_RATE", 10)
	cfg.RequestBurst = getEnvInt("REQUEST_BURST", 20)
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 5242880)
	cfg.TokenExpirySkew = getEnvDuration("TOKEN_EXPIRY_SKEW", 30*time.Second)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
