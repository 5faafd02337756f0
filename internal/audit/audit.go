// Package audit keeps an append-only trail of order lifecycle events.
package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Order lifecycle actions.
const (
	ActionOrderCreated   = "order.created"
	ActionOrderCanceled  = "order.canceled"
	ActionStatusChanged  = "order.status_changed"
	ActionPaymentChanged = "order.payment_changed"
	ActionTrackingSet    = "order.tracking_set"
)

// Entry is one recorded event.
type Entry struct {
	ID        string         `bson:"_id,omitempty" json:"id,omitempty"`
	Action    string         `bson:"action" json:"action"`
	EntityID  string         `bson:"entity_id" json:"entity_id"`
	ActorID   string         `bson:"actor_id" json:"actor_id"`
	Data      map[string]any `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// Recorder persists and reads back audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, entityID string, limit int64) ([]Entry, error)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Record(context.Context, Entry) error                  { return nil }
func (Noop) List(context.Context, string, int64) ([]Entry, error) { return []Entry{}, nil }

// Memory keeps entries in process. Used by tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

// List returns the newest entries first.
func (m *Memory) List(_ context.Context, entityID string, limit int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Entry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].EntityID == entityID {
			out = append(out, m.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
