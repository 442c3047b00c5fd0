// Package hwpool reference-counts hardware device contexts so
// multiple Streams constructed against the same device index share
// one underlying context, per spec.md §5: "The hardware device
// context... is reference-counted and may be shared across multiple
// Streams... Streams hold a shared reference and must not release the
// device."
package hwpool

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	ctx      *astiav.HardwareDeviceContext
	refCount int
}

// Pool maps device index to a shared, reference-counted device
// context. Concurrent Acquire calls for the same index are
// deduplicated via singleflight so two racing Stream opens never
// create two device contexts for the same GPU.
type Pool struct {
	mu      sync.Mutex
	entries map[key]*entry
	group   singleflight.Group
}

type key struct {
	deviceType astiav.HardwareDeviceType
	index      int
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{entries: make(map[key]*entry)}
}

// Handle is a caller's reference-counted handle to a shared device
// context; Release must be called exactly once.
type Handle struct {
	pool *Pool
	key  key
	Ctx  *astiav.HardwareDeviceContext
}

// Acquire returns a shared device context for (deviceType, index),
// creating one on first use. Concurrent callers racing to create the
// same not-yet-existing context are collapsed by singleflight into one
// construction, but each still gets its own Handle and its own
// increment of refCount — the dedup must never let N Handles out for
// the price of one reference, or the first Release would free a
// context the rest are still using.
func (p *Pool) Acquire(deviceType astiav.HardwareDeviceType, index int) (*Handle, error) {
	k := key{deviceType, index}
	sfKey := fmt.Sprintf("%d:%d", deviceType, index)

	v, err, _ := p.group.Do(sfKey, func() (any, error) {
		p.mu.Lock()
		if e, ok := p.entries[k]; ok {
			p.mu.Unlock()
			return e, nil
		}
		p.mu.Unlock()

		ctx, err := astiav.CreateHardwareDeviceContext(deviceType, index)
		if err != nil {
			return nil, fmt.Errorf("hwpool: create device context: %w", err)
		}

		p.mu.Lock()
		e := &entry{ctx: ctx}
		p.entries[k] = e
		p.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	e := v.(*entry)
	p.mu.Lock()
	e.refCount++
	p.mu.Unlock()
	return &Handle{pool: p, key: k, Ctx: e.ctx}, nil
}

// Release decrements the reference count, freeing the device context
// once it reaches zero. It is safe to call at most once per Handle.
func (h *Handle) Release() {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()

	e, ok := h.pool.entries[h.key]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount <= 0 {
		e.ctx.Free()
		delete(h.pool.entries, h.key)
	}
}
