// Package redis is the Redis client behind the OTP rate limits and the
// short-lived WeChat login keys. It wraps go-redis with OpenTelemetry
// spans and maps errors onto platform codes. A missing key ([redis.Nil])
// surfaces as [sserr.CodeNotFound], so callers test for it with
// [sserr.IsNotFound] instead of importing go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

const tracerName = "github.com/StricklySoft/learnhub-auth/pkg/clients/redis"

// Cmdable is the set of go-redis commands the client wraps. It is
// satisfied by [*redis.Client] and by test doubles.
type Cmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// Client is safe for concurrent use.
type Client struct {
	cmdable Cmdable
	config  *Config
	tracer  trace.Tracer
	dbIndex int
}

// NewClient validates cfg, connects, and pings the server.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: cannot connect to Redis
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation,
			"redis: invalid configuration")
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation,
			"redis: invalid configuration")
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"redis: failed to connect to server")
	}

	return &Client{
		cmdable: rdb,
		config:  &cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: opts.DB,
	}, nil
}

// NewFromClient wraps an existing Cmdable without validation.
func NewFromClient(cmdable Cmdable, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		cmdable: cmdable,
		config:  cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: cfg.DB,
	}
}

// Set stores value under key. A zero expiration means no TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ctx, span := c.startSpan(ctx, "Set", fmt.Sprintf("SET %s", key))
	err := c.cmdable.Set(ctx, key, value, expiration).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "redis: set failed")
	}
	return nil
}

// SetNX stores value only if key does not exist and reports whether it
// was stored.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	ctx, span := c.startSpan(ctx, "SetNX", fmt.Sprintf("SET %s NX", key))
	ok, err := c.cmdable.SetNX(ctx, key, value, expiration).Result()
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "redis: setnx failed")
	}
	return ok, nil
}

// Get returns the value of key, or a [sserr.CodeNotFound] error.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, span := c.startSpan(ctx, "Get", fmt.Sprintf("GET %s", key))
	val, err := c.cmdable.Get(ctx, key).Result()
	finishSpan(span, ignoreNil(err))
	if err != nil {
		return "", wrapError(err, "redis: get failed")
	}
	return val, nil
}

// GetDel returns the value of key and deletes it atomically. One-time
// codes use it so a value can be redeemed at most once.
func (c *Client) GetDel(ctx context.Context, key string) (string, error) {
	ctx, span := c.startSpan(ctx, "GetDel", fmt.Sprintf("GETDEL %s", key))
	val, err := c.cmdable.GetDel(ctx, key).Result()
	finishSpan(span, ignoreNil(err))
	if err != nil {
		return "", wrapError(err, "redis: getdel failed")
	}
	return val, nil
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	ctx, span := c.startSpan(ctx, "Del", fmt.Sprintf("DEL %v", keys))
	val, err := c.cmdable.Del(ctx, keys...).Result()
	finishSpan(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: del failed")
	}
	return val, nil
}

// Exists returns how many of keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	ctx, span := c.startSpan(ctx, "Exists", fmt.Sprintf("EXISTS %v", keys))
	val, err := c.cmdable.Exists(ctx, keys...).Result()
	finishSpan(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: exists failed")
	}
	return val, nil
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	ctx, span := c.startSpan(ctx, "Expire", fmt.Sprintf("EXPIRE %s %v", key, expiration))
	val, err := c.cmdable.Expire(ctx, key, expiration).Result()
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "redis: expire failed")
	}
	return val, nil
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, span := c.startSpan(ctx, "TTL", fmt.Sprintf("TTL %s", key))
	val, err := c.cmdable.TTL(ctx, key).Result()
	finishSpan(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: ttl failed")
	}
	return val, nil
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	ctx, span := c.startSpan(ctx, "Incr", fmt.Sprintf("INCR %s", key))
	val, err := c.cmdable.Incr(ctx, key).Result()
	finishSpan(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: incr failed")
	}
	return val, nil
}

// IncrWithTTL increments key and sets its TTL in one MULTI/EXEC, so a
// counter never outlives ttl after its last increment.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, span := c.startSpan(ctx, "IncrWithTTL", fmt.Sprintf("INCR %s; EXPIRE %s %v", key, key, ttl))
	var incr *redis.IntCmd
	_, err := c.cmdable.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	finishSpan(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: incr with ttl failed")
	}
	return incr.Val(), nil
}

// Health pings Redis, applying [DefaultHealthTimeout] when ctx has no
// deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "PING")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"redis: health check failed")
	}
	return nil
}

func (c *Client) Close() error {
	return c.cmdable.Close()
}

// Client returns the wrapped Cmdable. Do not close it directly.
func (c *Client) Client() Cmdable {
	return c.cmdable
}

func (c *Client) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "redis."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", c.dbIndex),
		attribute.String("db.statement", truncateStatement(statement)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// A cache miss is not a span failure.
func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// wrapError maps go-redis errors to platform codes. Deadlines are
// CodeTimeoutDatabase (retryable); cancellation is CodeInternalDatabase
// because the caller abandoned the call; a missing key is CodeNotFound.
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return sserr.Wrap(err, sserr.CodeNotFound, message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
