// Package postgres is the PostgreSQL client used by the LearnHub auth
// stores. It wraps a pgx connection pool with OpenTelemetry spans, maps
// driver errors onto platform error codes, and runs closures inside a
// transaction.
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret(os.Getenv("LEARNHUB_POSTGRES_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Tests inject a pgxmock pool through [NewFromPool].
//
// Unique constraint violations (SQLSTATE 23505) surface as
// [sserr.CodeConflictAlreadyExists] with the constraint name in the
// error details, so stores can tell a lost insert race from a real
// failure with [IsUniqueViolation].
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

const tracerName = "github.com/StricklySoft/learnhub-auth/pkg/clients/postgres"

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Pool is the subset of [*pgxpool.Pool] the client needs. pgxmock pools
// satisfy it too.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Querier is implemented by both [*Client] and [pgx.Tx], so store code
// can run the same statements inside or outside a transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var (
	_ Querier = (*Client)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// Client is safe for concurrent use. Create one per database.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
}

// NewClient validates cfg, opens the pool, and pings the database.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: cannot connect to the database
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation,
			"postgres: invalid configuration")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation,
			"postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: failed to connect to database")
	}

	dbName := cfg.Database
	if cfg.URI != "" {
		if u, parseErr := url.Parse(cfg.URI); parseErr == nil {
			dbName = strings.TrimPrefix(u.Path, "/")
		}
	}

	return &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: dbName,
	}, nil
}

// NewFromPool wraps an existing pool without validation. A nil cfg is
// treated as the zero Config.
func NewFromPool(pool Pool, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.Database,
	}
}

// Query runs a statement that returns rows. The caller closes the rows.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: query failed")
	}
	finishSpan(span, nil)
	return rows, nil
}

// QueryRow runs a statement that returns at most one row. Errors are
// deferred to Scan, so the span only covers execution; use [ScanError]
// to classify the Scan result.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()

	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)

	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, wrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// Begin starts a transaction. Prefer [Client.WithTx].
func (c *Client) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := c.startSpan(ctx, "Begin", "BEGIN")

	tx, err := c.pool.Begin(ctx)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: begin transaction failed")
	}
	return tx, nil
}

// WithTx runs fn in a transaction. The transaction commits when fn
// returns nil and rolls back otherwise; fn's error is returned as is.
func (c *Client) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	ctx, span := c.startSpan(ctx, "Commit", "COMMIT")
	err = tx.Commit(ctx)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: commit failed")
	}
	return nil
}

// Health pings the database, applying [DefaultHealthTimeout] when ctx has
// no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: health check failed")
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Pool returns the underlying pool. Do not close it directly.
func (c *Client) Pool() Pool {
	return c.pool
}

// StdDB opens a database/sql handle over the same pgx pool, for tools
// such as goose that speak database/sql. It fails when the client was
// built from a pool that is not a [*pgxpool.Pool]. Close the returned
// handle when done; the pool itself stays open.
func (c *Client) StdDB() (*sql.DB, error) {
	p, ok := c.pool.(*pgxpool.Pool)
	if !ok {
		return nil, sserr.New(sserr.CodeInternalConfiguration,
			"postgres: database/sql handle requires a pgxpool.Pool")
	}
	return stdlib.OpenDBFromPool(p), nil
}

// IsUniqueViolation reports whether err is a unique_violation, optionally
// on a specific constraint. It accepts both raw pgx errors and errors
// already wrapped by this client.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// ScanError classifies an error returned by Scan on a row from
// [Client.QueryRow]. [pgx.ErrNoRows] becomes [sserr.CodeNotFound];
// everything else goes through the same mapping as Query and Exec.
func ScanError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return sserr.Wrap(err, sserr.CodeNotFound, message)
	}
	return wrapError(err, message)
}

// WrapError classifies an error from a statement run on a [pgx.Tx] inside
// [Client.WithTx], using the same mapping as the client's own methods.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return wrapError(err, message)
}

func (c *Client) startSpan(ctx context.Context, operationName, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
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

// wrapError maps driver errors to platform codes: cancellation and
// deadlines to CodeTimeoutDatabase, unique violations to
// CodeConflictAlreadyExists, everything else to CodeInternalDatabase.
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return sserr.Wrap(err, sserr.CodeConflictAlreadyExists, message).
			WithDetail("constraint", pgErr.ConstraintName)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
