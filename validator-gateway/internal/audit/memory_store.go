package audit

import (
	"context"
	"sync"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/signing"
)

// MemoryStore keeps the trail in process. It is the default when no database
// is configured and the store used by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*Event
	order  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: map[string]*Event{},
	}
}

func (m *MemoryStore) AppendEvent(ctx context.Context, ev *Event, s signing.Signer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := ""
	if n := len(m.order); n > 0 {
		prev = m.events[m.order[n-1]].Hash
	}
	if _, err := seal(ctx, ev, prev, s); err != nil {
		return err
	}
	stored := *ev
	m.events[ev.ID] = &stored
	m.order = append(m.order, ev.ID)
	return nil
}

func (m *MemoryStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *ev
	return &c, nil
}

// Events returns copies of all events in append order.
func (m *MemoryStore) Events() []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Event, 0, len(m.order))
	for _, id := range m.order {
		c := *m.events[id]
		out = append(out, &c)
	}
	return out
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
