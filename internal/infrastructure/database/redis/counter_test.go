package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterStore_Increment(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewCounterStore(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Increment(ctx, "login:10.0.0.1", 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, 5*time.Minute, mr.TTL("tl:counter:login:10.0.0.1"))

	n, err := store.Count(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCounterStore_WindowExpires(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewCounterStore(client)
	ctx := context.Background()

	_, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	n, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCounterStore_Reset(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewCounterStore(client)
	ctx := context.Background()

	_, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "k"))

	n, err := store.Count(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeduplicator_FirstSeen(t *testing.T) {
	client, mr := newTestClient(t)
	d := NewDeduplicator(client)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "overdue:mis-1:2025-02-01", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, "overdue:mis-1:2025-02-01", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	mr.FastForward(25 * time.Hour)
	afterTTL, err := d.FirstSeen(ctx, "overdue:mis-1:2025-02-01", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, afterTTL)

	require.NoError(t, d.Forget(ctx, "overdue:mis-1:2025-02-01"))
	first, err = d.FirstSeen(ctx, "overdue:mis-1:2025-02-01", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
}
