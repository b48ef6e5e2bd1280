// Package pool keeps released slices for reuse so hot serialization paths do
// not allocate a fresh array per call.
//
// Pools are addressed by a caller chosen name and the element type. Each pool
// holds a bounded list of idle slices and hands out the best fit: an exact
// capacity match if there is one, otherwise the smallest slice that is large
// enough. A miss is never an error, the pool simply allocates.
package pool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/starfederation/fxcodec/fault"
)

// DefaultCapacity is the number of idle slices a pool keeps.
const DefaultCapacity = 64

// Stats is a snapshot of pool counters.
type Stats struct {
	Name      string
	Elem      string
	Idle      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Pool is a bounded best-fit list of idle slices of T. All methods are safe
// for concurrent use. A nil *Pool allocates on every Get and drops releases.
type Pool[T any] struct {
	name     string
	elem     string
	capacity int
	logger   *zap.Logger

	mu    sync.Mutex
	idle  [][]T // least recently released first
	stats Stats
}

func newPool[T any](name, elem string, capacity int, logger *zap.Logger) *Pool[T] {
	return &Pool[T]{
		name:     name,
		elem:     elem,
		capacity: capacity,
		logger:   logger,
		idle:     make([][]T, 0, capacity),
	}
}

// Name returns the pool name.
func (p *Pool[T]) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}

// Get returns a slice of length size. Its contents are unspecified: a reused
// slice still holds whatever its previous owner wrote.
func (p *Pool[T]) Get(size int) ([]T, error) {
	if size <= 0 {
		return nil, fault.InvalidArgument("pool %q: size %d must be positive", p.Name(), size)
	}
	if p == nil {
		return make([]T, size), nil
	}

	p.mu.Lock()
	best := -1
	for i, s := range p.idle {
		c := cap(s)
		if c == size {
			best = i
			break
		}
		if c > size && (best < 0 || c < cap(p.idle[best])) {
			best = i
		}
	}
	if best >= 0 {
		s := p.idle[best]
		copy(p.idle[best:], p.idle[best+1:])
		p.idle[len(p.idle)-1] = nil
		p.idle = p.idle[:len(p.idle)-1]
		p.stats.Hits++
		p.mu.Unlock()
		return s[:size], nil
	}
	p.stats.Misses++
	p.mu.Unlock()

	if ce := p.logger.Check(zap.DebugLevel, "pool miss"); ce != nil {
		ce.Write(zap.String("pool", p.name), zap.String("elem", p.elem), zap.Int("size", size))
	}
	return make([]T, size), nil
}

// Release hands s back to the pool. The caller must not touch s afterwards.
// Releasing a slice that is already idle is a no-op. When the pool is full the
// least recently released slice is dropped.
func (p *Pool[T]) Release(s []T) {
	if p == nil || cap(s) == 0 {
		return
	}
	s = s[:cap(s)]

	p.mu.Lock()
	for _, idle := range p.idle {
		if &idle[0] == &s[0] {
			p.mu.Unlock()
			return
		}
	}
	evicted := 0
	if len(p.idle) >= p.capacity {
		evicted = cap(p.idle[0])
		copy(p.idle, p.idle[1:])
		p.idle[len(p.idle)-1] = nil
		p.idle = p.idle[:len(p.idle)-1]
		p.stats.Evictions++
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()

	if evicted > 0 {
		if ce := p.logger.Check(zap.DebugLevel, "pool eviction"); ce != nil {
			ce.Write(zap.String("pool", p.name), zap.String("elem", p.elem), zap.Int("evictedCap", evicted))
		}
	}
}

// Lease checks out a slice and wraps it so the hand-back is explicit.
func (p *Pool[T]) Lease(size int) (*Lease[T], error) {
	s, err := p.Get(size)
	if err != nil {
		return nil, err
	}
	return &Lease[T]{pool: p, s: s}, nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stats
	st.Name = p.name
	st.Elem = p.elem
	st.Idle = len(p.idle)
	return st
}

// Clear drops every idle slice.
func (p *Pool[T]) Clear() {
	if p == nil {
		return
	}
	p.mu.Lock()
	clear(p.idle)
	p.idle = p.idle[:0]
	p.mu.Unlock()
}

// Lease is a checked-out slice. Release returns it to its pool exactly once;
// after that Slice returns nil.
type Lease[T any] struct {
	pool *Pool[T]
	s    []T
}

// Slice returns the leased slice, or nil once released.
func (l *Lease[T]) Slice() []T {
	return l.s
}

// Release returns the slice to the pool. Further calls do nothing.
func (l *Lease[T]) Release() {
	if l.s == nil {
		return
	}
	l.pool.Release(l.s)
	l.s = nil
}
