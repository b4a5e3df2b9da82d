package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), "redis://"+mr.Addr(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisLeaseKeyAndToken(t *testing.T) {
	r, mr := newTestRedis(t)

	release, err := r.Acquire(context.Background(), "workroom:I_1", time.Minute)
	require.NoError(t, err)

	token, err := mr.Get("bridge:lock:workroom:I_1")
	require.NoError(t, err)
	assert.Len(t, token, 36)
	assert.Equal(t, time.Minute, mr.TTL("bridge:lock:workroom:I_1"))

	release()
	assert.False(t, mr.Exists("bridge:lock:workroom:I_1"))
}

func TestRedisExclusive(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "workroom:I_1", time.Minute)
	require.NoError(t, err)
	defer release()

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(short, "workroom:I_1", time.Minute)
	assert.ErrorIs(t, err, ErrBusy)

	other, err := r.Acquire(ctx, "workroom:I_2", time.Minute)
	require.NoError(t, err)
	other()
}

func TestRedisReleaseOnlyByOwner(t *testing.T) {
	r, mr := newTestRedis(t)

	release, err := r.Acquire(context.Background(), "workroom:I_1", time.Minute)
	require.NoError(t, err)

	// the lease expired and another holder took the key
	require.NoError(t, mr.Set("bridge:lock:workroom:I_1", "someone-else"))

	release()
	release()
	got, err := mr.Get("bridge:lock:workroom:I_1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisExpiredLeaseCanBeTaken(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	first, err := r.Acquire(ctx, "workroom:I_1", time.Minute)
	require.NoError(t, err)
	defer first()

	mr.FastForward(time.Minute)

	second, err := r.Acquire(ctx, "workroom:I_1", time.Minute)
	require.NoError(t, err)
	second()
}

func TestRedisLeaseRenewedWhileHeld(t *testing.T) {
	r, mr := newTestRedis(t)
	ttl := 300 * time.Millisecond

	release, err := r.Acquire(context.Background(), "workroom:I_1", ttl)
	require.NoError(t, err)

	mr.SetTTL("bridge:lock:workroom:I_1", time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("bridge:lock:workroom:I_1") == ttl
	}, 2*time.Second, 20*time.Millisecond)

	release()
	assert.False(t, mr.Exists("bridge:lock:workroom:I_1"))
}
