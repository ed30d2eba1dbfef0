package process

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"
)

const persistTimeout = 3 * time.Second

// PathStore persists the registry. Implementations must be safe for
// concurrent use.
type PathStore interface {
	LoadPaths(ctx context.Context) (map[string]string, error)
	SavePath(ctx context.Context, name, path string) error
}

// Registry is the owned name-to-path cache shared by the controller and its
// callers. Keys are normalized image names.
type Registry struct {
	mu    sync.RWMutex
	paths map[string]string
	store PathStore
}

// NewRegistry creates a registry, preloading it from store when non-nil.
// Load failures are logged and leave the registry empty.
func NewRegistry(ctx context.Context, store PathStore) *Registry {
	r := &Registry{paths: map[string]string{}, store: store}
	if store == nil {
		return r
	}
	loaded, err := store.LoadPaths(ctx)
	if err != nil {
		slog.Warn("[process] failed to load known executable paths", "error", err)
		return r
	}
	for name, path := range loaded {
		if key := normalizeImageName(name); key != "" && path != "" {
			r.paths[key] = path
		}
	}
	slog.Debug("[process] registry loaded", "count", len(r.paths))
	return r
}

// Lookup returns the last-known path for name.
func (r *Registry) Lookup(name string) (string, bool) {
	key := normalizeImageName(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.paths[key]
	return path, ok
}

// Remember records path for name and persists it when the value changed.
func (r *Registry) Remember(name, path string) {
	key := normalizeImageName(name)
	if key == "" || path == "" {
		return
	}
	r.mu.Lock()
	unchanged := r.paths[key] == path
	r.paths[key] = path
	r.mu.Unlock()
	if unchanged || r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.store.SavePath(ctx, key, path); err != nil {
		slog.Warn("[process] failed to persist executable path", "target", key, "error", err)
	}
}

// Snapshot returns a copy of every known path.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.paths)
}
