package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// mockCmdable covers failure paths that an in-memory server cannot
// produce on demand.
type mockCmdable struct {
	mock.Mock
}

func (m *mockCmdable) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	return m.Called(ctx, key, value, expiration).Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	return m.Called(ctx, key, value, expiration).Get(0).(*redis.BoolCmd)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	return m.Called(ctx, key).Get(0).(*redis.StringCmd)
}

func (m *mockCmdable) GetDel(ctx context.Context, key string) *redis.StringCmd {
	return m.Called(ctx, key).Get(0).(*redis.StringCmd)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return m.Called(ctx, keys).Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	return m.Called(ctx, keys).Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return m.Called(ctx, key, expiration).Get(0).(*redis.BoolCmd)
}

func (m *mockCmdable) TTL(ctx context.Context, key string) *redis.DurationCmd {
	return m.Called(ctx, key).Get(0).(*redis.DurationCmd)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	return m.Called(ctx, key).Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	args := m.Called(ctx)
	return nil, args.Error(1)
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	return m.Called(ctx).Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Close() error {
	return m.Called().Error(0)
}

func newMiniClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{URI: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(context.Background(), Config{
		URI:         "redis://127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableDependency))
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URI: "http://localhost:6379"})
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidation))
}

func TestClient_SetGet(t *testing.T) {
	mr, client := newMiniClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "sms:phone:+15550001111", "1", time.Minute))
	got, err := client.Get(ctx, "sms:phone:+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
	assert.Equal(t, time.Minute, mr.TTL("sms:phone:+15550001111"))

	_, err = client.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, sserr.IsNotFound(err), "missing key should be NotFound, got %v", err)
}

func TestClient_SetNX(t *testing.T) {
	_, client := newMiniClient(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "cooldown", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "cooldown", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX must not overwrite")
}

func TestClient_GetDelIsOneShot(t *testing.T) {
	_, client := newMiniClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "wechat_exchange:abc", "user-1", 5*time.Minute))

	got, err := client.GetDel(ctx, "wechat_exchange:abc")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got)

	_, err = client.GetDel(ctx, "wechat_exchange:abc")
	assert.True(t, sserr.IsNotFound(err))
}

func TestClient_IncrWithTTL(t *testing.T) {
	mr, client := newMiniClient(t)
	ctx := context.Background()

	n, err := client.IncrWithTTL(ctx, "sms:ip:10.0.0.1:2026101712", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Hour, mr.TTL("sms:ip:10.0.0.1:2026101712"))

	mr.FastForward(30 * time.Minute)
	n, err = client.IncrWithTTL(ctx, "sms:ip:10.0.0.1:2026101712", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, mr.TTL("sms:ip:10.0.0.1:2026101712"), "every increment refreshes the TTL")
}

func TestClient_DelExistsTTL(t *testing.T) {
	_, client := newMiniClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "a", "1", 10*time.Second))
	n, err := client.Exists(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ttl, err := client.TTL(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, ttl)

	ok, err := client.Expire(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = client.Del(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClient_Health(t *testing.T) {
	_, client := newMiniClient(t)
	assert.NoError(t, client.Health(context.Background()))

	m := new(mockCmdable)
	m.On("Ping", mock.Anything).Return(redis.NewStatusResult("", errors.New("connection refused")))
	err := NewFromClient(m, nil).Health(context.Background())
	assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableDependency))
	m.AssertExpectations(t)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want sserr.Code
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: sserr.CodeTimeoutDatabase},
		{name: "canceled", err: context.Canceled, want: sserr.CodeInternalDatabase},
		{name: "generic", err: errors.New("READONLY"), want: sserr.CodeInternalDatabase},
		{name: "nil reply", err: redis.Nil, want: sserr.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(mockCmdable)
			m.On("Incr", mock.Anything, "k").Return(redis.NewIntResult(0, tt.err))

			_, err := NewFromClient(m, &Config{DB: 2}).Incr(context.Background(), "k")
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, tt.want), "got %v", err)
			assert.ErrorIs(t, err, tt.err)
			m.AssertExpectations(t)
		})
	}
}

func TestClient_IncrWithTTL_ExistingKeyWithoutTTL(t *testing.T) {
	mr, client := newMiniClient(t)
	ctx := context.Background()

	// A counter left without an expiry gets one on the next increment.
	require.NoError(t, mr.Set("sms:attempt:stale", "3"))
	n, err := client.IncrWithTTL(ctx, "sms:attempt:stale", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, 5*time.Minute, mr.TTL("sms:attempt:stale"))
}

func TestClient_IncrWithTTL_Failure(t *testing.T) {
	m := new(mockCmdable)
	m.On("TxPipelined", mock.Anything).Return(nil, context.DeadlineExceeded)

	n, err := NewFromClient(m, nil).IncrWithTTL(context.Background(), "k", time.Hour)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeTimeoutDatabase))
	assert.Equal(t, int64(0), n)
	m.AssertExpectations(t)
}

func TestClient_CloseAndAccessor(t *testing.T) {
	m := new(mockCmdable)
	m.On("Close").Return(nil)
	c := NewFromClient(m, nil)
	assert.Same(t, m, c.Client())
	assert.NoError(t, c.Close())
	m.AssertExpectations(t)
}
