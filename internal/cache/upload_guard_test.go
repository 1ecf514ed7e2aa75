package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestUploadGuard(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	client, err := NewClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	guard := NewUploadGuard(client, time.Minute)

	ok, err := guard.Claim(ctx, 1, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Claim(ctx, 1, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = guard.Claim(ctx, 2, "abc")
	require.NoError(t, err)
	assert.True(t, ok, "claims are per owner")

	require.NoError(t, guard.Release(ctx, 1, "abc"))
	ok, err = guard.Claim(ctx, 1, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := client.TTL(ctx, uploadKey(1, "abc")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "upload:42:deadbeef", uploadKey(42, "deadbeef"))
}
