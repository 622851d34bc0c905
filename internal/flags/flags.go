// Package flags persists the per-feed "use mock data" switches.
package flags

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
)

// Flag keys. Each switches one feed from the live upstream to its bundled fixture.
const (
	MockAlerts  = "useMockAlerts"
	MockWeather = "useMockWeather"
	MockAqi     = "useMockAqi"
)

// Keys lists every known flag.
var Keys = []string{MockAlerts, MockWeather, MockAqi}

var ErrUnknownFlag = errors.New("unknown flag")

// Known reports whether key is one of Keys.
func Known(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Store is durable flag storage.
type Store interface {
	Load(ctx context.Context) (map[string]bool, error)
	Save(ctx context.Context, key string, value bool) error
}

// Flags is the in-process view of the stored flags, read once at startup.
// Writes go to the store first and then to the view.
type Flags struct {
	mu     sync.RWMutex
	values map[string]bool
	store  Store
}

// Load reads all flags from store. Missing keys are false.
func Load(ctx context.Context, store Store) (*Flags, error) {
	values, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}
	f := &Flags{values: make(map[string]bool, len(Keys)), store: store}
	for _, k := range Keys {
		f.values[k] = values[k]
	}
	return f, nil
}

// Enabled reports the current value of key. Unknown keys are false.
func (f *Flags) Enabled(key string) bool {
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[key]
}

// Set persists and applies a new value.
func (f *Flags) Set(ctx context.Context, key string, value bool) error {
	if !Known(key) {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	if err := f.store.Save(ctx, key, value); err != nil {
		return fmt.Errorf("save flag %s: %w", key, err)
	}
	f.mu.Lock()
	f.values[key] = value
	f.mu.Unlock()
	return nil
}

// All returns a copy of every flag value.
func (f *Flags) All() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.values)
}

// MemoryStore is a Store for tests and for running without a database.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]bool
}

func NewMemoryStore(initial map[string]bool) *MemoryStore {
	values := maps.Clone(initial)
	if values == nil {
		values = make(map[string]bool)
	}
	return &MemoryStore{values: values}
}

func (m *MemoryStore) Load(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values), nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
