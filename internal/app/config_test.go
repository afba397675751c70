package app

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/learnhub-auth/internal/testutil"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "change-me", cfg.JWTSecret)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.SMSCodeTTL)
	assert.Equal(t, 60*time.Second, cfg.SMSPhoneCooldown)
	assert.Equal(t, 20, cfg.SMSIPHourlyLimit)
	assert.Equal(t, SMSDeliveryLog, cfg.SMSDelivery)
	assert.Equal(t, "http://localhost:3000/api/auth/jwks", cfg.JWKSURL)
	assert.Equal(t, "http://localhost:3000", cfg.Issuer)
	assert.Empty(t, cfg.Audience)
	assert.Equal(t, 6*time.Hour, cfg.JWKSCacheTTL)
	assert.False(t, cfg.DevBypass)
	assert.Equal(t, "dev-user", cfg.DevSubject)
	assert.Equal(t, "better_auth", cfg.AuthProviderName)
	assert.Equal(t, "mock-app-id", cfg.WeChatAppID)
	assert.True(t, cfg.WeChatMock)
	assert.Equal(t, "http://localhost:3000/auth/callback", cfg.FrontendCallbackURL)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEARNHUB_HTTP_ADDR", ":9000")
	t.Setenv("LEARNHUB_BETTER_AUTH_AUDIENCE", "learnhub-api")
	t.Setenv("LEARNHUB_AUTH_DEV_BYPASS", "true")
	t.Setenv("LEARNHUB_SMS_DELIVERY", "task")
	t.Setenv("LEARNHUB_TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2")
	t.Setenv("LEARNHUB_POSTGRES_URI", "postgres://u:p@db:5432/learnhub")
	t.Setenv("LEARNHUB_REDIS_DB", "3")
	t.Setenv("LEARNHUB_WECHAT_MOCK", "false")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "learnhub-api", cfg.Audience)
	assert.True(t, cfg.DevBypass)
	assert.Equal(t, SMSDeliveryTask, cfg.SMSDelivery)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.TrustedProxies)
	assert.Equal(t, "postgres://u:p@db:5432/learnhub", cfg.Postgres.URI)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.False(t, cfg.WeChatMock)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := testutil.TempFile(t, "learnhub.yaml", `
http_addr: ":7000"
log_level: debug
sms_ip_hourly_limit: 5
postgres:
  database: auth
`)
	t.Setenv("LEARNHUB_LOG_LEVEL", "warn")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, 5, cfg.SMSIPHourlyLimit)
	assert.Equal(t, "auth", cfg.Postgres.Database)
}

func TestLoad_DotEnv(t *testing.T) {
	path := testutil.TempFile(t, ".env", "LEARNHUB_AUTH_PROVIDER_NAME=better_auth_v2\n")
	// Registered so t.Setenv restores the variable godotenv exports.
	t.Setenv("LEARNHUB_AUTH_PROVIDER_NAME", "")
	require.NoError(t, os.Unsetenv("LEARNHUB_AUTH_PROVIDER_NAME"))

	cfg, err := Load("", path)
	require.NoError(t, err)
	assert.Equal(t, "better_auth_v2", cfg.AuthProviderName)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
		{name: "sms delivery", mutate: func(c *Config) { c.SMSDelivery = "pigeon" }},
		{name: "empty secret", mutate: func(c *Config) { c.JWTSecret = "" }},
		{name: "zero access ttl", mutate: func(c *Config) { c.AccessTokenTTL = 0 }},
		{name: "relative jwks url", mutate: func(c *Config) { c.JWKSURL = "/api/auth/jwks" }},
		{name: "bad frontend url", mutate: func(c *Config) { c.FrontendCallbackURL = "::" }},
		{name: "empty issuer", mutate: func(c *Config) { c.Issuer = "" }},
		{name: "worker concurrency", mutate: func(c *Config) { c.WorkerConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("", "")
			require.NoError(t, err)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_InvalidEnvIsValidationError(t *testing.T) {
	t.Setenv("LEARNHUB_LOG_FORMAT", "xml")
	_, err := Load("", "")
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)
}
