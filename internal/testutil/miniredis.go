package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	redisclient "github.com/StricklySoft/learnhub-auth/pkg/clients/redis"
)

// StartMiniRedis runs an in-process Redis and returns it together with a
// client connected to it. Both are closed when the test ends. Use
// mr.FastForward to expire keys.
func StartMiniRedis(t testing.TB) (*miniredis.Miniredis, *redisclient.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient(context.Background(), redisclient.Config{URI: "redis://" + mr.Addr()})
	require.NoError(t, err, "failed to connect to miniredis")
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
