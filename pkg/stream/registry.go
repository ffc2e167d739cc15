package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Registry caches resolved datasets so concurrent opens of the same
// source and variable share one metadata probe. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Dataset
	group   singleflight.Group
	log     zerolog.Logger
}

// NewRegistry creates an empty dataset registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Registry{
		entries: make(map[string]*Dataset),
		log:     l,
	}
}

// Open resolves a dataset, reusing a previously resolved one for the
// same source, variable and format hint. Concurrent calls with the same
// arguments perform a single resolution.
func (r *Registry) Open(ctx context.Context, src Source, variable string, opts ResolveOptions) (*Dataset, error) {
	key := fmt.Sprintf("%s|%s|%d", src, variable, opts.Format)

	r.mu.Lock()
	if ds, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return ds, nil
	}
	r.mu.Unlock()

	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		ds, err := Resolve(ctx, src, variable, opts)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[key] = ds
		r.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.log.Debug().Str("key", key).Msg("dataset open deduplicated")
	}
	return v.(*Dataset), nil
}

// Forget drops the cached dataset for a source/variable pair so the
// next Open re-resolves it.
func (r *Registry) Forget(src Source, variable string, format FormatHint) {
	key := fmt.Sprintf("%s|%s|%d", src, variable, format)
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Clear drops every cached dataset.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*Dataset)
	r.mu.Unlock()
}

// Len returns the number of cached datasets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
