package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// maxSQLTruncateLen bounds SQL text recorded on spans so bound values in
// long statements never reach the tracing backend.
const maxSQLTruncateLen = 100

// Defaults for a local or docker-compose deployment.
const (
	DefaultHost              = "localhost"
	DefaultPort              = 5432
	DefaultDatabase          = "learnhub"
	DefaultUser              = "learnhub"
	DefaultMaxConns    int32 = 20
	DefaultMinConns    int32 = 2
	DefaultMaxConnLife       = time.Hour
	DefaultMaxConnIdle       = 30 * time.Minute
	DefaultHealthCheck       = time.Minute
	DefaultConnectTimeout    = 10 * time.Second

	// DefaultHealthTimeout applies to Health when the caller's context
	// has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// SSLMode is the libpq sslmode connection parameter.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModeAllow      SSLMode = "allow"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// Valid reports whether m is a recognized sslmode.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeDisable, SSLModeAllow, SSLModePrefer,
		SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	}
	return false
}

// Secret holds a password. It prints and serializes as "[REDACTED]"; use
// Value for the real string.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

// Value returns the unredacted password.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config is the PostgreSQL connection configuration. URI, when set, wins
// over the structured fields. Env tags are relative to the enclosing
// config prefix (LEARNHUB_POSTGRES_URI and so on).
type Config struct {
	URI         string  `json:"uri,omitempty" yaml:"uri" env:"URI"`
	Host        string  `json:"host,omitempty" yaml:"host" env:"HOST" envDefault:"localhost"`
	Port        int     `json:"port,omitempty" yaml:"port" env:"PORT" envDefault:"5432"`
	Database    string  `json:"database" yaml:"database" env:"DATABASE" envDefault:"learnhub"`
	User        string  `json:"user" yaml:"user" env:"USER" envDefault:"learnhub"`
	Password    Secret  `json:"-" yaml:"-" env:"PASSWORD"`
	SSLMode     SSLMode `json:"ssl_mode,omitempty" yaml:"ssl_mode" env:"SSLMODE" envDefault:"disable"`
	SSLRootCert string  `json:"ssl_root_cert,omitempty" yaml:"ssl_root_cert" env:"SSL_ROOT_CERT"`

	MaxConns          int32         `json:"max_conns,omitempty" yaml:"max_conns" env:"MAX_CONNS"`
	MinConns          int32         `json:"min_conns,omitempty" yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime   time.Duration `json:"max_conn_lifetime,omitempty" yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration `json:"max_conn_idle_time,omitempty" yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration `json:"health_check_period,omitempty" yaml:"health_check_period" env:"HEALTH_CHECK_PERIOD"`
	ConnectTimeout    time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// DefaultConfig returns a Config pointing at a local database.
func DefaultConfig() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Database:          DefaultDatabase,
		User:              DefaultUser,
		SSLMode:           SSLModeDisable,
		MaxConns:          DefaultMaxConns,
		MinConns:          DefaultMinConns,
		MaxConnLifetime:   DefaultMaxConnLife,
		MaxConnIdleTime:   DefaultMaxConnIdle,
		HealthCheckPeriod: DefaultHealthCheck,
		ConnectTimeout:    DefaultConnectTimeout,
	}
}

// Validate fills zero pool settings with defaults and checks the rest.
func (c *Config) Validate() error {
	c.applyPoolDefaults()

	if c.URI != "" {
		if _, err := url.Parse(c.URI); err != nil {
			return fmt.Errorf("postgres: config URI is invalid: %w", err)
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
		return fmt.Errorf("postgres: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return errors.New("postgres: config database must not be empty")
	}
	if c.User == "" {
		return errors.New("postgres: config user must not be empty")
	}
	if c.SSLMode == "" {
		c.SSLMode = SSLModeDisable
	}
	if !c.SSLMode.Valid() {
		return fmt.Errorf("postgres: config ssl_mode %q is not valid", c.SSLMode)
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("postgres: config max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}

func (c *Config) applyPoolDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultMaxConnLife
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdle
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = DefaultHealthCheck
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// ConnectionString renders the structured fields as a postgres:// URL, or
// returns URI unchanged. The result contains the password in clear text.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", string(c.SSLMode))
	}
	if c.SSLRootCert != "" {
		q.Set("sslrootcert", c.SSLRootCert)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLTruncateLen {
		return sql
	}
	return sql[:maxSQLTruncateLen] + "..."
}
