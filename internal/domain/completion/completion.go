// Package completion tracks which actions a player has already been rewarded for.
package completion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	keyPrefix = "EcoAction_"
	keySuffix = "_Completed"
)

// Key returns the store key holding the completion flag of actionID.
func Key(actionID string) string {
	return keyPrefix + actionID + keySuffix
}

// Tracker records one-time completion flags.
type Tracker interface {
	// MarkOnce atomically checks whether id is completed and marks it if not.
	// Returns true if id was already completed.
	MarkOnce(ctx context.Context, id string) (bool, error)

	// IsCompleted reports whether id carries a completion flag.
	IsCompleted(ctx context.Context, id string) (bool, error)

	// Completed lists the known completed ids in lexical order.
	Completed() []string
}

// memoryTracker keeps flags in a map. Flags are never evicted.
type memoryTracker struct {
	mu   sync.RWMutex
	done map[string]struct{}
}

// NewInMemoryTracker creates a tracker without persistence.
func NewInMemoryTracker() Tracker {
	return &memoryTracker{done: make(map[string]struct{})}
}

func (t *memoryTracker) MarkOnce(_ context.Context, id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.done[id]; ok {
		return true, nil
	}
	t.done[id] = struct{}{}
	return false, nil
}

func (t *memoryTracker) IsCompleted(_ context.Context, id string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.done[id]
	return ok, nil
}

func (t *memoryTracker) Completed() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.done)
}

// Store is the local key-value store backing persistent flags.
type Store interface {
	GetInt(ctx context.Context, key string) (int, bool, error)
	SetInt(ctx context.Context, key string, value int) error
	// Keys lists the stored keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// persistentTracker writes flags through to a Store and caches what it has seen.
type persistentTracker struct {
	mu    sync.Mutex
	store Store
	cache map[string]struct{}
}

// NewPersistentTracker creates a tracker whose flags survive restarts. Flags
// already in store are loaded so Completed lists them.
func NewPersistentTracker(ctx context.Context, store Store) (Tracker, error) {
	t := &persistentTracker{store: store, cache: make(map[string]struct{})}

	keys, err := store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list completion flags: %w", err)
	}
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k, keyPrefix)
		if !ok {
			continue
		}
		id, ok := strings.CutSuffix(rest, keySuffix)
		if !ok || id == "" {
			continue
		}
		v, found, err := store.GetInt(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("read completion flag %q: %w", id, err)
		}
		if found && v == 1 {
			t.cache[id] = struct{}{}
		}
	}
	return t, nil
}

func (t *persistentTracker) MarkOnce(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.cache[id]; ok {
		return true, nil
	}

	v, found, err := t.store.GetInt(ctx, Key(id))
	if err != nil {
		return false, fmt.Errorf("read completion flag %q: %w", id, err)
	}
	if found && v == 1 {
		t.cache[id] = struct{}{}
		return true, nil
	}

	if err := t.store.SetInt(ctx, Key(id), 1); err != nil {
		return false, fmt.Errorf("write completion flag %q: %w", id, err)
	}
	t.cache[id] = struct{}{}
	return false, nil
}

func (t *persistentTracker) IsCompleted(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.cache[id]; ok {
		return true, nil
	}
	v, found, err := t.store.GetInt(ctx, Key(id))
	if err != nil {
		return false, fmt.Errorf("read completion flag %q: %w", id, err)
	}
	if found && v == 1 {
		t.cache[id] = struct{}{}
		return true, nil
	}
	return false, nil
}

func (t *persistentTracker) Completed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.cache)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
