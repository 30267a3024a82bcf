package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TransitLedger/internal/config"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&RedisConfig{Mode: "standalone", Addr: mr.Addr(), KeyPrefix: "tl"}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewClient_Standalone_Success(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NoError(t, client.GetUnderlyingClient().Ping(context.Background()).Err())
}

func TestNewClient_Standalone_ConnectionFailed(t *testing.T) {
	cfg := &RedisConfig{Mode: "standalone", Addr: "localhost:1", DialTimeout: 100 * time.Millisecond}

	client, err := NewClient(cfg, logging.NewNopLogger())
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

func TestFromConfig(t *testing.T) {
	rc := FromConfig(config.RedisConfig{Mode: "cluster", Addrs: []string{"a:1", "b:2"}, KeyPrefix: "x"})
	assert.Equal(t, "cluster", rc.Mode)
	assert.Equal(t, []string{"a:1", "b:2"}, rc.Addrs)
	assert.Equal(t, "x", rc.KeyPrefix)
}

func TestClient_Key(t *testing.T) {
	client, _ := newTestClient(t)
	assert.Equal(t, "tl:login:10.0.0.1", client.Key("login", "10.0.0.1"))

	bare := NewClientWithUniversal(client.GetUnderlyingClient(), nil, logging.NewNopLogger())
	assert.Equal(t, "login:x", bare.Key("login", "x"))
}

func TestClient_Operations(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "foo", "bar", time.Minute).Result()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "foo", "baz", time.Minute).Result()
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := client.Get(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, "bar", val)
	assert.Equal(t, time.Minute, mr.TTL("foo"))

	deleted, err := client.Del(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestClient_Close(t *testing.T) {
	client, _ := newTestClient(t)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	err := client.Get(context.Background(), "foo").Err()
	assert.Equal(t, ErrClientClosed, err)
	assert.Equal(t, ErrClientClosed, client.Ping(context.Background()))
}
