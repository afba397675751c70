package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/StricklySoft/learnhub-auth/pkg/clients/postgres"
	redisclient "github.com/StricklySoft/learnhub-auth/pkg/clients/redis"
	"github.com/StricklySoft/learnhub-auth/pkg/config"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LEARNHUB"

// SMS delivery modes.
const (
	SMSDeliveryLog  = "log"
	SMSDeliveryTask = "task"
)

// Config is the process configuration. Every field can be set from
// LEARNHUB_<ENV>; nested client configs use LEARNHUB_POSTGRES_* and
// LEARNHUB_REDIS_*.
type Config struct {
	HTTPAddr        string        `json:"http_addr" yaml:"http_addr" env:"HTTP_ADDR" envDefault:":8000"`
	GRPCAddr        string        `json:"grpc_addr" yaml:"grpc_addr" env:"GRPC_ADDR"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustedProxies  []string      `json:"trusted_proxies" yaml:"trusted_proxies" env:"TRUSTED_PROXIES"`

	LogLevel  string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `json:"log_format" yaml:"log_format" env:"LOG_FORMAT" envDefault:"json"`

	JWTSecret       string        `json:"-" yaml:"jwt_secret" env:"JWT_SECRET" envDefault:"change-me"`
	JWTAlgorithm    string        `json:"jwt_algorithm" yaml:"jwt_algorithm" env:"JWT_ALGORITHM" envDefault:"HS256"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl" yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	SMSCodeTTL       time.Duration `json:"sms_code_ttl" yaml:"sms_code_ttl" env:"SMS_CODE_TTL" envDefault:"5m"`
	SMSPhoneCooldown time.Duration `json:"sms_phone_cooldown" yaml:"sms_phone_cooldown" env:"SMS_PHONE_COOLDOWN" envDefault:"60s"`
	SMSIPHourlyLimit int           `json:"sms_ip_hourly_limit" yaml:"sms_ip_hourly_limit" env:"SMS_IP_HOURLY_LIMIT" envDefault:"20"`
	SMSMaxAttempts   int           `json:"sms_max_attempts" yaml:"sms_max_attempts" env:"SMS_MAX_ATTEMPTS" envDefault:"5"`
	SMSDelivery      string        `json:"sms_delivery" yaml:"sms_delivery" env:"SMS_DELIVERY" envDefault:"log"`

	JWKSURL      string        `json:"better_auth_jwks_url" yaml:"better_auth_jwks_url" env:"BETTER_AUTH_JWKS_URL" envDefault:"http://localhost:3000/api/auth/jwks"`
	Issuer       string        `json:"better_auth_issuer" yaml:"better_auth_issuer" env:"BETTER_AUTH_ISSUER" envDefault:"http://localhost:3000"`
	Audience     string        `json:"better_auth_audience" yaml:"better_auth_audience" env:"BETTER_AUTH_AUDIENCE"`
	JWKSCacheTTL time.Duration `json:"better_auth_jwks_cache_ttl" yaml:"better_auth_jwks_cache_ttl" env:"BETTER_AUTH_JWKS_CACHE_TTL" envDefault:"6h"`

	DevBypass        bool   `json:"auth_dev_bypass" yaml:"auth_dev_bypass" env:"AUTH_DEV_BYPASS"`
	DevSubject       string `json:"auth_dev_user_sub" yaml:"auth_dev_user_sub" env:"AUTH_DEV_USER_SUB" envDefault:"dev-user"`
	AuthProviderName string `json:"auth_provider_name" yaml:"auth_provider_name" env:"AUTH_PROVIDER_NAME" envDefault:"better_auth"`

	WeChatAppID         string `json:"wechat_app_id" yaml:"wechat_app_id" env:"WECHAT_APP_ID" envDefault:"mock-app-id"`
	WeChatMock          bool   `json:"wechat_mock" yaml:"wechat_mock" env:"WECHAT_MOCK" envDefault:"true"`
	WeChatRedirectURI   string `json:"wechat_redirect_uri" yaml:"wechat_redirect_uri" env:"WECHAT_REDIRECT_URI" envDefault:"http://localhost:8000/api/v1/auth/wechat/web/callback"`
	FrontendCallbackURL string `json:"frontend_auth_callback_url" yaml:"frontend_auth_callback_url" env:"FRONTEND_AUTH_CALLBACK_URL" envDefault:"http://localhost:3000/auth/callback"`

	WorkerConcurrency int `json:"worker_concurrency" yaml:"worker_concurrency" env:"WORKER_CONCURRENCY" envDefault:"10"`

	Postgres postgres.Config    `json:"postgres" yaml:"postgres" env:"POSTGRES"`
	Redis    redisclient.Config `json:"redis" yaml:"redis" env:"REDIS"`
}

var _ config.Validator = (*Config)(nil)

// Load reads the configuration from file (optional), the dotenv file
// (optional), and the environment.
func Load(file, dotEnv string) (Config, error) {
	var cfg Config
	err := config.New().
		WithEnvPrefix(EnvPrefix).
		WithFile(file).
		WithDotEnv(dotEnv).
		Load(&cfg)
	return cfg, err
}

// Validate checks the settings the loader cannot check by tag.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("app: log format %q is not json or text", c.LogFormat)
	}
	switch c.SMSDelivery {
	case SMSDeliveryLog, SMSDeliveryTask:
	default:
		return fmt.Errorf("app: sms delivery %q is not %q or %q", c.SMSDelivery, SMSDeliveryLog, SMSDeliveryTask)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("app: jwt secret must not be empty")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("app: token lifetimes must be positive")
	}
	for name, raw := range map[string]string{
		"better_auth_jwks_url":       c.JWKSURL,
		"frontend_auth_callback_url": c.FrontendCallbackURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("app: %s %q is not an absolute URL", name, raw)
		}
	}
	if c.Issuer == "" {
		return fmt.Errorf("app: better_auth_issuer must not be empty")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("app: worker concurrency must be positive, got %d", c.WorkerConcurrency)
	}
	return nil
}
