package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string, int64]()
	c.now = func() time.Time { return now }

	c.Set("alice", 42, time.Minute)
	v, ok := c.Get("alice")
	require.True(t, ok)
	assert.Equal(t, int64(42), v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("alice")
	assert.False(t, ok)
}

func TestGetOrLoad(t *testing.T) {
	c := New[string, int64]()
	calls := 0
	load := func() (int64, error) {
		calls++
		return 7, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("bob", time.Hour, load)
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrLoad("carol", time.Hour, func() (int64, error) { return 0, errors.New("boom") })
	assert.Error(t, err)
	_, ok := c.Get("carol")
	assert.False(t, ok, "errors must not be cached")
}

func TestCleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[int64, bool]()
	c.now = func() time.Time { return now }

	c.Set(1, true, time.Second)
	c.Set(2, true, time.Hour)
	now = now.Add(time.Minute)
	c.Cleanup()

	_, ok := c.items.Load(int64(1))
	assert.False(t, ok)
	_, ok = c.items.Load(int64(2))
	assert.True(t, ok)
}
