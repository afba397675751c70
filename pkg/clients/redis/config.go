package redis

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxStatementTruncateLen bounds the command text recorded on spans.
const maxStatementTruncateLen = 100

// Defaults for a local or docker-compose deployment.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultDB            = 0
	DefaultPoolSize      = 25
	DefaultMinIdleConns  = 5
	DefaultMaxRetries    = 3
	DefaultDialTimeout   = 10 * time.Second
	DefaultReadTimeout   = 5 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Secret holds a password and prints as "[REDACTED]".
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

// Value returns the unredacted password.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config is the Redis connection configuration. The same settings feed
// the go-redis client used by the OTP limiter and the asynq task queue.
// URI (redis:// or rediss://) wins over Host, Port, and DB.
type Config struct {
	URI          string        `json:"uri,omitempty" yaml:"uri" env:"URI"`
	Host         string        `json:"host,omitempty" yaml:"host" env:"HOST" envDefault:"localhost"`
	Port         int           `json:"port,omitempty" yaml:"port" env:"PORT" envDefault:"6379"`
	DB           int           `json:"db" yaml:"db" env:"DB"`
	Password     Secret        `json:"-" yaml:"-" env:"PASSWORD"`
	PoolSize     int           `json:"pool_size,omitempty" yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns,omitempty" yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	MaxRetries   int           `json:"max_retries,omitempty" yaml:"max_retries" env:"MAX_RETRIES"`
	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	TLSEnabled   bool          `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// DefaultConfig returns a Config pointing at a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		DB:           DefaultDB,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate fills zero settings with defaults and checks the rest.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis or rediss, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: config db must be >= 0, got %d", c.DB)
	}
	if c.PoolSize < c.MinIdleConns {
		return fmt.Errorf("redis: config pool_size (%d) must be >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// Options converts the config to go-redis options. Call Validate first.
func (c *Config) Options() (*redis.Options, error) {
	if c.URI != "" {
		opts, err := redis.ParseURL(c.URI)
		if err != nil {
			return nil, fmt.Errorf("redis: failed to parse connection URI: %w", err)
		}
		opts.PoolSize = c.PoolSize
		opts.MinIdleConns = c.MinIdleConns
		opts.MaxRetries = c.MaxRetries
		opts.DialTimeout = c.DialTimeout
		opts.ReadTimeout = c.ReadTimeout
		opts.WriteTimeout = c.WriteTimeout
		return opts, nil
	}

	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password:     c.Password.Value(),
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
	if c.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func truncateStatement(s string) string {
	if len(s) <= maxStatementTruncateLen {
		return s
	}
	return s[:maxStatementTruncateLen] + "..."
}
