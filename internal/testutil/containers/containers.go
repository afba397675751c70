//go:build integration

// Package containers starts throwaway PostgreSQL and Redis instances for
// integration tests. Everything here carries the "integration" build tag
// so unit test builds never pull in Docker dependencies.
//
//	pg, err := containers.StartPostgres(ctx)
//	if err != nil { ... }
//	defer pg.Container.Terminate(ctx)
//
//	cfg := postgres.Config{URI: pg.ConnString, MaxConns: 5}
package containers

import (
	"context"
	"fmt"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	DefaultPostgresImage    = "docker.io/postgres:16-alpine"
	DefaultPostgresDatabase = "learnhub_test"
	DefaultPostgresUser     = "learnhub"
	// Only ever used for ephemeral local containers.
	DefaultPostgresPassword = "learnhub"

	DefaultRedisImage = "docker.io/redis:7-alpine"
)

// PostgresResult is a started PostgreSQL container. ConnString carries
// sslmode=disable and can be passed to postgres.Config.URI.
type PostgresResult struct {
	Container  *tcpostgres.PostgresContainer
	ConnString string
}

// StartPostgres starts PostgreSQL 16. The caller terminates the container.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get connection string: %w", err)
	}
	return &PostgresResult{Container: container, ConnString: connStr}, nil
}

// RedisResult is a started Redis container. ConnString is a redis:// URI.
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis starts Redis 7. The caller terminates the container.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}
	return &RedisResult{Container: container, ConnString: connStr}, nil
}
