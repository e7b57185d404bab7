package redis

import (
	"anchor/internal/config"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := New(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", "v", 0).Err())
	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = New(context.Background(), &config.RedisConfig{})
	assert.ErrorContains(t, err, "addr is required")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err = New(context.Background(), &config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
