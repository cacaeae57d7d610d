package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New(Options{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(Options{})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(Options{Backend: BackendMemory, TTL: time.Second})
	require.NoError(t, err)
	require.IsType(t, &MemoryCache{}, c)
	assert.Equal(t, time.Second, c.(*MemoryCache).config.DefaultTTL)
	assert.Equal(t, "gas:", c.(*MemoryCache).config.Prefix)
	c.Close()
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := New(Options{Backend: BackendRedis, Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	require.IsType(t, &RedisCache{}, c)
	assert.Equal(t, DefaultConfig(), c.(*RedisCache).config)
	c.Close()
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "memcached"})
	assert.ErrorContains(t, err, `unknown cache backend "memcached"`)
}
