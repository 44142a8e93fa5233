// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 補完APIの既定値
const (
	DefaultCompletionBaseURL = "https://api.openai.com/v1"
	DefaultCompletionModel   = "gpt-3.5-turbo"
	DefaultSystemPrompt      = "You are an expert at rewriting AI-generated text to sound as human and natural as possible. Rewrite the following text to be undetectable as AI-generated, while preserving the original meaning."
	DefaultUserTemplate      = "Humanize this text: {{input}}"
)

// 補完プロバイダー名
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth（未設定の場合Googleログインは無効）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Guest
	GuestCredits       int
	GuestTokenTTL      time.Duration
	GuestRetentionDays int

	// Credits
	SignupCredits int

	// Completion
	CompletionProvider     string
	CompletionAPIKey       string
	CompletionBaseURL      string
	CompletionModel        string
	CompletionSystemPrompt string
	CompletionUserTemplate string
	CompletionMaxTokens    int
	CompletionTemperature  float64
	CompletionTimeout      time.Duration

	// Rewrite
	RewriteMaxInputChars int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitRewrite int
	RateLimitPublic  int // 未認証エンドポイントのクライアントIPごとの上限
	RateLimitGuest   int // ゲストセッション発行のクライアントIPごとの上限（1時間あたり）

	// Idempotency
	RedisURL       string
	IdempotencyTTL time.Duration

	// Worker
	RenewalInterval time.Duration
	CleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// GoogleOAuthEnabled はGoogleログインに必要な設定が揃っているかを返す。
func (c *Config) GoogleOAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.GuestCredits = getEnvInt("GUEST_CREDITS", 1)
	cfg.GuestTokenTTL = getEnvDuration("GUEST_TOKEN_TTL", 24*time.Hour)
	cfg.GuestRetentionDays = getEnvInt("GUEST_RETENTION_DAYS", 7)
	cfg.SignupCredits = getEnvInt("SIGNUP_CREDITS", 10)

	cfg.CompletionProvider = strings.ToLower(getEnvString("COMPLETION_PROVIDER", ProviderOpenAI))
	cfg.CompletionAPIKey = getEnvString("COMPLETION_API_KEY", os.Getenv("OPENAI_API_KEY"))
	cfg.CompletionBaseURL = strings.TrimRight(getEnvString("COMPLETION_BASE_URL", DefaultCompletionBaseURL), "/")
	cfg.CompletionModel = getEnvString("COMPLETION_MODEL", DefaultCompletionModel)
	cfg.CompletionSystemPrompt = getEnvString("COMPLETION_SYSTEM_PROMPT", DefaultSystemPrompt)
	cfg.CompletionUserTemplate = getEnvString("COMPLETION_USER_TEMPLATE", DefaultUserTemplate)
	cfg.CompletionMaxTokens = getEnvInt("COMPLETION_MAX_TOKENS", 1024)
	cfg.CompletionTemperature = getEnvFloat("COMPLETION_TEMPERATURE", 0.7)
	cfg.CompletionTimeout = getEnvDuration("COMPLETION_TIMEOUT", 30*time.Second)

	cfg.RewriteMaxInputChars = getEnvInt("REWRITE_MAX_INPUT_CHARS", 10000)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRewrite = getEnvInt("RATE_LIMIT_REWRITE", 10)
	cfg.RateLimitPublic = getEnvInt("RATE_LIMIT_PUBLIC", 30)
	cfg.RateLimitGuest = getEnvInt("RATE_LIMIT_GUEST", 5)

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.IdempotencyTTL = getEnvDuration("IDEMPOTENCY_TTL", 10*time.Minute)

	cfg.RenewalInterval = getEnvDuration("RENEWAL_INTERVAL", time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	switch cfg.CompletionProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return nil, fmt.Errorf("unsupported COMPLETION_PROVIDER: %q", cfg.CompletionProvider)
	}

	// 0以下の間隔はtime.NewTickerがpanicするため起動時に拒否する
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"COMPLETION_TIMEOUT", cfg.CompletionTimeout},
		{"IDEMPOTENCY_TTL", cfg.IdempotencyTTL},
		{"RENEWAL_INTERVAL", cfg.RenewalInterval},
		{"CLEANUP_INTERVAL", cfg.CleanupInterval},
	} {
		if d.value <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if cfg.RateLimitGuest <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_GUEST must be positive, got %d", cfg.RateLimitGuest)
	}

	return cfg, nil
}

// loadDotEnv は.envファイルを読み込む。ファイルが存在しない場合は何もしない。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
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
