package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// SchemaVersion tags every persisted envelope. Bumping it turns every cached
// dataset into a cold start.
const SchemaVersion = 3

// Dataset names a logical slice of cached state.
type Dataset string

const (
	DatasetCatalog  Dataset = "catalog"
	DatasetOrders   Dataset = "orders"
	DatasetDraft    Dataset = "draft"
	DatasetDelivery Dataset = "delivery"
)

// Key returns the versioned backend key for a dataset.
func Key(d Dataset) string {
	return fmt.Sprintf("orderdesk_%s_v%d", d, SchemaVersion)
}

// Backend is a durable key/value medium.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Mutation reports a write made by another instance attached to the same medium.
type Mutation struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

// Notifier is implemented by backends that can observe writes from other
// instances. Writes made through the subscribing instance are not delivered.
type Notifier interface {
	Subscribe(ctx context.Context) (<-chan Mutation, error)
}

// ErrNotifyUnsupported is returned by Store.Subscribe when the backend cannot
// report foreign writes.
var ErrNotifyUnsupported = errors.New("backend does not support change notifications")

type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data"`
}

// Store wraps a Backend with the versioned envelope. Reads fail open: anything
// unexpected is reported as absent.
type Store struct {
	backend Backend
	logger  *log.Logger
	now     func() time.Time
}

// New builds a Store. A nil logger discards read diagnostics.
func New(backend Backend, logger *log.Logger) *Store {
	return &Store{backend: backend, logger: logger, now: time.Now}
}

// Backend exposes the underlying medium.
func (s *Store) Backend() Backend {
	return s.backend
}

// Save serializes value into an envelope stamped with the current version.
func (s *Store) Save(ctx context.Context, d Dataset, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d, err)
	}
	blob, err := json.Marshal(envelope{Version: SchemaVersion, SavedAt: s.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", d, err)
	}
	if err := s.backend.Set(ctx, Key(d), blob); err != nil {
		return fmt.Errorf("save %s: %w", d, err)
	}
	return nil
}

// Delete removes a dataset.
func (s *Store) Delete(ctx context.Context, d Dataset) error {
	return s.backend.Delete(ctx, Key(d))
}

// Subscribe forwards foreign mutations when the backend supports them.
func (s *Store) Subscribe(ctx context.Context) (<-chan Mutation, error) {
	n, ok := s.backend.(Notifier)
	if !ok {
		return nil, ErrNotifyUnsupported
	}
	return n.Subscribe(ctx)
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Store) read(ctx context.Context, d Dataset) (json.RawMessage, bool) {
	blob, ok, err := s.backend.Get(ctx, Key(d))
	if err != nil {
		s.logf("[store] read %s: %v", d, err)
		return nil, false
	}
	if !ok || len(blob) == 0 {
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		s.logf("[store] discard %s: %v", d, err)
		return nil, false
	}
	if env.Version != SchemaVersion {
		s.logf("[store] discard %s: version %d, want %d", d, env.Version, SchemaVersion)
		return nil, false
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, false
	}
	return env.Data, true
}

// Load decodes a dataset into a fresh T. The zero value and false are returned
// whenever the stored value is missing, from another schema version, or does
// not decode.
func Load[T any](ctx context.Context, s *Store, d Dataset) (T, bool) {
	var zero T
	data, ok := s.read(ctx, d)
	if !ok {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		s.logf("[store] discard %s: %v", d, err)
		return zero, false
	}
	return value, true
}
