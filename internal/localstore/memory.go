package localstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryMedium struct {
	mu   sync.RWMutex
	data map[string][]byte
	subs map[*memorySub]struct{}
}

type memorySub struct {
	origin string
	ch     chan Mutation
}

// Memory is an in-process backend. Handles created with Peer share the same
// data and observe each other's writes, the way two tabs share localStorage.
type Memory struct {
	medium *memoryMedium
	origin string
}

// NewMemory returns an empty medium and a first handle on it.
func NewMemory() *Memory {
	return &Memory{
		medium: &memoryMedium{
			data: make(map[string][]byte),
			subs: make(map[*memorySub]struct{}),
		},
		origin: uuid.NewString(),
	}
}

// Peer returns another handle on the same medium with its own origin.
func (m *Memory) Peer() *Memory {
	return &Memory{medium: m.medium, origin: uuid.NewString()}
}

// Origin identifies this handle in emitted mutations.
func (m *Memory) Origin() string {
	return m.origin
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.medium.mu.RLock()
	defer m.medium.mu.RUnlock()
	value, ok := m.medium.data[key]
	if !ok {
		return nil, false, nil
	}
	dup := make([]byte, len(value))
	copy(dup, value)
	return dup, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	dup := make([]byte, len(value))
	copy(dup, value)
	m.medium.mu.Lock()
	m.medium.data[key] = dup
	m.medium.mu.Unlock()
	m.broadcast(key)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.medium.mu.Lock()
	delete(m.medium.data, key)
	m.medium.mu.Unlock()
	m.broadcast(key)
	return nil
}

// Subscribe delivers writes made through other handles until ctx is done.
func (m *Memory) Subscribe(ctx context.Context) (<-chan Mutation, error) {
	sub := &memorySub{origin: m.origin, ch: make(chan Mutation, 16)}
	m.medium.mu.Lock()
	m.medium.subs[sub] = struct{}{}
	m.medium.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.medium.mu.Lock()
		delete(m.medium.subs, sub)
		close(sub.ch)
		m.medium.mu.Unlock()
	}()
	return sub.ch, nil
}

func (m *Memory) broadcast(key string) {
	m.medium.mu.RLock()
	defer m.medium.mu.RUnlock()
	for sub := range m.medium.subs {
		if sub.origin == m.origin {
			continue
		}
		// Slow subscribers lose events; they recover on the next focus reload.
		select {
		case sub.ch <- Mutation{Key: key, Origin: m.origin}:
		default:
		}
	}
}
