package config

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Env     string `env:"ENV,default=local"`
	Lambda  string `env:"AWS_LAMBDA_FUNCTION_NAME"`
	Logs    LogConfig
	DB      PostgresConfig
	HTTP    HTTPConfig
	Auth    AuthConfig
	Webhook WebhookConfig
	AI      OpenAIConfig
	Quotes  QuotesConfig
	Email   EmailConfig
	Queue   QueueConfig
	Usage   UsageConfig
}

type LogConfig struct {
	Style string `env:"LOG_STYLE,default=json"`
	Level string `env:"LOG_LEVEL,default=info"`
}

// PostgresConfig points at the Supabase database. The connection uses the
// service-role credential, so row-level policies do not apply to it.
type PostgresConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	Timeout         time.Duration `env:"STORE_TIMEOUT,default=5s"`
}

type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR,default=0.0.0.0:8080"`
}

type AuthConfig struct {
	Issuer   string `env:"SUPABASE_JWT_ISSUER"`
	Audience string `env:"SUPABASE_JWT_AUDIENCE,default=authenticated"`
	JWKSURL  string `env:"SUPABASE_JWKS_URL"`
	Disabled bool   `env:"AUTH_DISABLED,default=false"`
}

type WebhookConfig struct {
	Secret    string        `env:"POLAR_WEBHOOK_SECRET"`
	Tolerance time.Duration `env:"WEBHOOK_TOLERANCE,default=5m"`
	DedupTTL  time.Duration `env:"WEBHOOK_DEDUP_TTL,default=5m"`
}

type OpenAIConfig struct {
	APIKey  string        `env:"OPENAI_API_KEY"`
	Model   string        `env:"OPENAI_MODEL,default=gpt-4o-mini"`
	BaseURL string        `env:"OPENAI_BASE_URL"`
	Timeout time.Duration `env:"OPENAI_TIMEOUT,default=20s"`
}

type QuotesConfig struct {
	BaseURL string        `env:"QUOTES_BASE_URL,default=https://query1.finance.yahoo.com"`
	Timeout time.Duration `env:"QUOTES_TIMEOUT,default=5s"`
}

type EmailConfig struct {
	APIKey string `env:"RESEND_API_KEY"`
	From   string `env:"EMAIL_FROM,default=Ticko <noreply@ticko.app>"`
}

type QueueConfig struct {
	ReconcileURL string `env:"RECONCILE_QUEUE_URL"`
}

type UsageConfig struct {
	Timezone string `env:"USAGE_TIMEZONE,default=Local"`
}

// Load reads the process environment (after .env autoload) into a Config.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit source of variables.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsLocal reports whether the service runs in a developer environment.
func (c *Config) IsLocal() bool {
	return strings.EqualFold(c.Env, "local")
}

// AuthDisabled reports whether AUTH_DISABLED applies. It is honoured only
// locally or outside Lambda.
func (c *Config) AuthDisabled() bool {
	return c.Auth.Disabled && (c.IsLocal() || c.Lambda == "")
}

// Location resolves the timezone that defines "today" for the AI usage counter.
func (u UsageConfig) Location() (*time.Location, error) {
	if u.Timezone == "" || strings.EqualFold(u.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(u.Timezone)
}
