package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryListsNewestFirstPerEntity(t *testing.T) {
	ctx := context.Background()
	m := &Memory{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.Record(ctx, Entry{Action: ActionOrderCreated, EntityID: "o1", CreatedAt: base}))
	require.NoError(t, m.Record(ctx, Entry{Action: ActionOrderCreated, EntityID: "o2", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, m.Record(ctx, Entry{Action: ActionStatusChanged, EntityID: "o1", CreatedAt: base.Add(2 * time.Second)}))
	require.NoError(t, m.Record(ctx, Entry{Action: ActionOrderCanceled, EntityID: "o1", CreatedAt: base.Add(3 * time.Second)}))

	all, err := m.List(ctx, "o1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActionOrderCanceled, all[0].Action)
	assert.Equal(t, ActionOrderCreated, all[2].Action)

	limited, err := m.List(ctx, "o1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ActionStatusChanged, limited[1].Action)

	none, err := m.List(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStampsCreatedAt(t *testing.T) {
	m := &Memory{}
	require.NoError(t, m.Record(context.Background(), Entry{EntityID: "o1"}))
	got, err := m.List(context.Background(), "o1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	require.NoError(t, r.Record(context.Background(), Entry{}))
	got, err := r.List(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}
