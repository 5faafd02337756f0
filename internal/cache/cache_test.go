package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

func TestMemoryRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got item
	ok, err := m.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetJSON(ctx, "k", item{Name: "Phone", Price: 1000}, time.Minute))
	ok, err = m.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, item{Name: "Phone", Price: 1000}, got)

	require.NoError(t, m.Del(ctx, "k"))
	ok, _ = m.GetJSON(ctx, "k", &got)
	assert.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.SetJSON(ctx, "k", item{Name: "x"}, time.Second))
	now = now.Add(2 * time.Second)

	var got item
	ok, err := m.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	require.NoError(t, c.SetJSON(context.Background(), "k", 1, 0))
	ok, err := c.GetJSON(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, ok)
}
