package pool

import (
	"reflect"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Well known pool names used inside this module.
const (
	WriterBytes   = "fxcodec.writer.bytes"
	DataSetValues = "fxcodec.dataset.values"
)

type poolKey struct {
	name string
	elem reflect.Type
}

type statser interface {
	Stats() Stats
	Clear()
}

// Registry owns the named pools of a program. Create one at start-up and pass
// it to the components that serialize; there is no package level registry.
// A nil *Registry is valid and disables pooling.
type Registry struct {
	capacity int
	logger   *zap.Logger

	mu    sync.RWMutex
	pools map[poolKey]statser
}

// Option configures a Registry.
type Option func(*Registry)

// WithCapacity sets the number of idle slices each pool keeps.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithLogger sets the logger used for pool misses and evictions.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		capacity: DefaultCapacity,
		logger:   zap.NewNop(),
		pools:    make(map[poolKey]statser),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the pool of T registered under name, creating it on first
// use. Names are the only discovery mechanism: unrelated call sites must not
// share one.
func Lookup[T any](r *Registry, name string) *Pool[T] {
	if r == nil {
		return nil
	}
	key := poolKey{name: name, elem: reflect.TypeFor[T]()}

	r.mu.RLock()
	p, ok := r.pools[key]
	r.mu.RUnlock()
	if ok {
		return p.(*Pool[T])
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[key]; ok {
		return p.(*Pool[T])
	}
	np := newPool[T](name, key.elem.String(), r.capacity, r.logger)
	r.pools[key] = np
	return np
}

// Get checks out a slice of length size from the named pool.
func Get[T any](r *Registry, name string, size int) ([]T, error) {
	return Lookup[T](r, name).Get(size)
}

// Release returns s to the named pool.
func Release[T any](r *Registry, name string, s []T) {
	Lookup[T](r, name).Release(s)
}

// Stats returns the counters of every pool, ordered by name and element type.
func (r *Registry) Stats() []Stats {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]Stats, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p.Stats())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Stats) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Elem, b.Elem)
	})
	return out
}

// Clear drops the idle slices of every pool.
func (r *Registry) Clear() {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.pools {
		p.Clear()
	}
}
