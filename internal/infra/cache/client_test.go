package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "cn:prefs:abc", buildKey("prefs", "abc"))
	assert.Equal(t, "cn:lock", buildKey("lock", ""))
}

func TestClient_Keys(t *testing.T) {
	c := NewClient(newFakeCmdable())
	assert.Equal(t, "cn:prefs:u1", c.PreferencesKey("u1"))
	assert.Equal(t, "cn:lock:daily-digest", c.LockKey("daily-digest"))
	assert.Equal(t, "notifications:u1", RealtimeChannel("u1"))
}

func TestClient_NilStore(t *testing.T) {
	var c *Client
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, c.Set(ctx, "k", "v", 0), ErrNotInitialized)
	assert.ErrorIs(t, c.Ping(ctx), ErrNotInitialized)
	assert.NoError(t, c.Close())
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), "")
	require.Error(t, err)

	_, err = Connect(context.Background(), "://bad")
	require.Error(t, err)
}
