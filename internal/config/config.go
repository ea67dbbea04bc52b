package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// minSessionSecretLength はHS256署名鍵として許容する最小バイト長。
const minSessionSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Identity provider
	IdentityURL            string        `env:"IDENTITY_URL,required,notEmpty"`
	IdentityAnonKey        string        `env:"IDENTITY_ANON_KEY,required,notEmpty"`
	IdentityServiceRoleKey string        `env:"IDENTITY_SERVICE_ROLE_KEY"`
	IdentityTimeout        time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`

	// Session
	SessionSecret      string        `env:"SESSION_SECRET,required,notEmpty"`
	FallbackSessionTTL time.Duration `env:"FALLBACK_SESSION_TTL" envDefault:"30m"`
	ProtectedPrefixes  []string      `env:"PROTECTED_PREFIXES" envSeparator:"," envDefault:"/programs,/dashboard,/admin"`

	// Rate Limit
	RateLimitSignIn int `env:"RATE_LIMIT_SIGN_IN" envDefault:"10"`

	// Worker
	AnomalyRetentionDays int           `env:"ANOMALY_RETENTION_DAYS" envDefault:"90"`
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if len(cfg.SessionSecret) < minSessionSecretLength {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength)
	}
	if cfg.FallbackSessionTTL <= 0 {
		return nil, fmt.Errorf("FALLBACK_SESSION_TTL must be positive: %s", cfg.FallbackSessionTTL)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}
